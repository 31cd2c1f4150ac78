package models

import (
	"time"

	"github.com/aiwa-app/aiwa/pkg/types"
)

// Subscription is the single billing row of a user. Every writer keeps
// CreditsRemaining equal to CreditsTotal - CreditsUsed; downgrades may leave it negative.
type Subscription struct {
	ID           string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID       string                   `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Plan         types.PlanID             `gorm:"column:plan;type:varchar(32);not null" json:"plan"`
	BillingCycle types.BillingCycle       `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	Status       types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`

	CreditsTotal     int `gorm:"column:credits_total;not null;default:0" json:"credits_total"`
	CreditsUsed      int `gorm:"column:credits_used;not null;default:0" json:"credits_used"`
	CreditsRemaining int `gorm:"column:credits_remaining;not null;default:0" json:"credits_remaining"`

	StripeCustomerID     *string `gorm:"column:stripe_customer_id;type:varchar(128)" json:"stripe_customer_id"`
	StripeSubscriptionID *string `gorm:"column:stripe_subscription_id;type:varchar(128);index" json:"stripe_subscription_id"`
	StripePriceID        *string `gorm:"column:stripe_price_id;type:varchar(128)" json:"stripe_price_id"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	// CurrentPeriodEnd drives the monthly reset job.
	CurrentPeriodEnd  *time.Time `gorm:"column:current_period_end;default:null;index" json:"current_period_end"`
	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// HasCredits reports whether at least cost credits are left.
func (s *Subscription) HasCredits(cost int) bool {
	return s != nil && s.CreditsRemaining >= cost && s.CreditsRemaining > 0
}
