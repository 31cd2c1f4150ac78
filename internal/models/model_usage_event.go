package models

import "time"

// UsageEvent records one generation call. Rows are never updated.
type UsageEvent struct {
	ID               string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID           string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_usage_user_created,priority:1" json:"user_id"`
	ChatID           string    `gorm:"column:chat_id;type:varchar(128)" json:"chat_id"`
	MessageID        string    `gorm:"column:message_id;type:varchar(128)" json:"message_id"`
	PromptTokens     int       `gorm:"column:prompt_tokens;not null;default:0" json:"prompt_tokens"`
	CompletionTokens int       `gorm:"column:completion_tokens;not null;default:0" json:"completion_tokens"`
	TotalTokens      int       `gorm:"column:total_tokens;not null;default:0" json:"total_tokens"`
	Model            string    `gorm:"column:model;type:varchar(64)" json:"model"`
	Status           string    `gorm:"column:status;type:varchar(32)" json:"status"`
	CreatedAt        time.Time `gorm:"index:idx_usage_user_created,priority:2" json:"created_at"`
}

func (UsageEvent) TableName() string { return "usage_events" }
