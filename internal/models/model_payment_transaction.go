package models

import (
	"time"

	"github.com/aiwa-app/aiwa/pkg/types"
)

// PaymentTransaction is the money ledger. StripeInvoiceID and StripePaymentID are
// unique when present and serve as the idempotency keys of webhook replays.
type PaymentTransaction struct {
	ID     string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string            `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Kind   types.PaymentKind `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	// Amount in the smallest currency unit
	Amount               int64               `gorm:"column:amount;not null;default:0" json:"amount"`
	Currency             string              `gorm:"column:currency;type:varchar(8)" json:"currency"`
	Status               types.PaymentStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	StripeInvoiceID      *string             `gorm:"column:stripe_invoice_id;type:varchar(128);uniqueIndex" json:"stripe_invoice_id"`
	StripePaymentID      *string             `gorm:"column:stripe_payment_id;type:varchar(128);uniqueIndex" json:"stripe_payment_id"`
	StripeSubscriptionID *string             `gorm:"column:stripe_subscription_id;type:varchar(128)" json:"stripe_subscription_id"`
	Description          string              `gorm:"column:description;type:text" json:"description"`
	CreatedAt            time.Time           `gorm:"index" json:"created_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }
