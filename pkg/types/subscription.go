package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// FromStripeStatus folds the provider's subscription statuses into ours.
// Unknown values keep the subscription active.
func FromStripeStatus(s string) SubscriptionStatus {
	switch s {
	case "past_due", "unpaid", "incomplete", "paused":
		return SubscriptionStatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return SubscriptionStatusCancelled
	default:
		return SubscriptionStatusActive
	}
}

type WebhookLogStatus string

const (
	WebhookLogStatusPending WebhookLogStatus = "pending"
	WebhookLogStatusSuccess WebhookLogStatus = "success"
	WebhookLogStatusFailed  WebhookLogStatus = "failed"
)

type PaymentKind string

const (
	PaymentKindSubscriptionInvoice PaymentKind = "subscription_invoice"
	PaymentKindCreditPurchase      PaymentKind = "credit_purchase"
)

type UserCreditsInfo struct {
	Plan             PlanID             `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	CreditsTotal     int                `json:"credits_total"`
	CreditsUsed      int                `json:"credits_used"`
	CreditsRemaining int                `json:"credits_remaining"`
	MessagesToday    int64              `json:"messages_today"`
	MessagesPerDay   int                `json:"messages_per_day"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end"`
}

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)
