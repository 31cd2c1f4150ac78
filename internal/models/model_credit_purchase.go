package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditPurchase struct {
	ID                    string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID                string          `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	AmountUSD             decimal.Decimal `gorm:"column:amount_usd;type:numeric(12,2);not null" json:"amount_usd"`
	Credits               int             `gorm:"column:credits;not null" json:"credits"`
	StripePaymentIntentID string          `gorm:"column:stripe_payment_intent_id;type:varchar(128);not null;uniqueIndex" json:"stripe_payment_intent_id"`
	CreatedAt             time.Time       `json:"created_at"`
}

func (CreditPurchase) TableName() string { return "credit_purchases" }
