package models

import (
	"time"

	"github.com/aiwa-app/aiwa/pkg/types"
	"gorm.io/datatypes"
)

// WebhookLog tracks one provider event through pending -> success|failed.
// EventID is the lookup key; redeliveries overwrite the same row.
type WebhookLog struct {
	ID             string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID        string                 `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex" json:"event_id"`
	Type           string                 `gorm:"column:type;type:varchar(128);not null" json:"type"`
	UserID         *string                `gorm:"column:user_id;type:varchar(64)" json:"user_id"`
	Email          *string                `gorm:"column:email;type:varchar(255)" json:"email"`
	Amount         *int64                 `gorm:"column:amount" json:"amount"`
	CustomerID     *string                `gorm:"column:customer_id;type:varchar(128)" json:"customer_id"`
	SubscriptionID *string                `gorm:"column:subscription_id;type:varchar(128)" json:"subscription_id"`
	Status         types.WebhookLogStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ErrorMessage   *string                `gorm:"column:error_message;type:text" json:"error_message"`
	Payload        datatypes.JSON         `gorm:"column:payload;type:jsonb" json:"payload"`
	Attempts       int                    `gorm:"column:attempts;not null;default:1" json:"attempts"`
	TraceID        string                 `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	ProcessedAt    *time.Time             `gorm:"column:processed_at;default:null" json:"processed_at"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }
