package store

import (
	"context"
	"errors"
	"time"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/pkg/types"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrAlreadyExists       = errors.New("store: already exists")
	ErrInsufficientCredits = errors.New("store: insufficient credits")
)

// PaymentTransactionFilterFields lists the columns admin filters may reference.
var PaymentTransactionFilterFields = []string{
	"user_id", "kind", "status", "currency", "amount",
	"stripe_invoice_id", "stripe_payment_id", "stripe_subscription_id", "created_at",
}

// SubscriptionUpdate is a partial update; nil fields are left untouched.
// Setting CreditsTotal without CreditsUsed keeps the stored usage and
// recomputes credits_remaining against it.
type SubscriptionUpdate struct {
	Plan                 *types.PlanID
	BillingCycle         *types.BillingCycle
	Status               *types.SubscriptionStatus
	CreditsTotal         *int
	CreditsUsed          *int
	StripeCustomerID     *string
	StripeSubscriptionID *string
	StripePriceID        *string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    *bool
	CancelledAt          *time.Time
}

type Period struct {
	Start time.Time
	End   time.Time
}

// CreditReset restores a subscription to a fresh allowance with zero usage.
// A zero Allowance keeps credits_total as stored; a nil Period keeps the
// billing period.
type CreditReset struct {
	Allowance int
	Period    *Period
}

type ListWebhookLogsRequest struct {
	// Status filters by state; empty lists every state
	Status types.WebhookLogStatus
	From   int
	Size   int
}

type ScanPaymentTransactionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type DailyPaymentStat struct {
	Date     string `json:"date"`
	Currency string `json:"currency"`
	Count    int64  `json:"count"`
	Amount   int64  `json:"amount"`
}

// Store is the persistence boundary of the billing service. Implementations
// must make ConsumeCredits, ApplyCreditPurchase and ApplyInvoicePayment atomic.
type Store interface {
	// Subscription methods
	GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, userID string, upd *SubscriptionUpdate) error
	ResetMonthlyCredits(ctx context.Context, userID string, reset *CreditReset) error
	ListSubscriptionsDueForReset(ctx context.Context, now time.Time) ([]*models.Subscription, error)

	// Credit metering
	ConsumeCredits(ctx context.Context, userID string, cost int) error
	RefundCredits(ctx context.Context, userID string, cost int) error
	CreateUsageEvent(ctx context.Context, ev *models.UsageEvent) error
	CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int64, error)
	CountAnonymousMessagesSince(ctx context.Context, ip string, since time.Time) (int64, error)
	CreateChatOwnership(ctx context.Context, o *models.ChatOwnership) error
	CreateAnonymousChatLog(ctx context.Context, l *models.AnonymousChatLog) error

	// Ledger methods. The boolean result is false when the idempotency key
	// was already recorded and nothing changed.
	ApplyCreditPurchase(ctx context.Context, purchase *models.CreditPurchase, tx *models.PaymentTransaction) (bool, error)
	ApplyInvoicePayment(ctx context.Context, userID string, reset *CreditReset, tx *models.PaymentTransaction) (bool, error)
	ScanPaymentTransactions(ctx context.Context, req *ScanPaymentTransactionsRequest) ([]*models.PaymentTransaction, int64, error)
	DailyPaymentStats(ctx context.Context, filters []*types.CommonFilter) ([]*DailyPaymentStat, error)

	// Webhook log methods
	UpsertWebhookLog(ctx context.Context, l *models.WebhookLog) error
	MarkWebhookLog(ctx context.Context, eventID string, status types.WebhookLogStatus, errMsg string) error
	GetWebhookLog(ctx context.Context, eventID string) (*models.WebhookLog, error)
	ListWebhookLogs(ctx context.Context, req *ListWebhookLogsRequest) ([]*models.WebhookLog, int64, error)
}

// NormalizePage clamps pagination input to sane bounds.
func NormalizePage(from, size int) (int, int) {
	if from < 0 {
		from = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return from, size
}
