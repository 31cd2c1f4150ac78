package models

import "time"

// ChatOwnership maps a generated chat id to the user that created it.
type ChatOwnership struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ChatID    string    `gorm:"column:chat_id;type:varchar(128);not null;uniqueIndex" json:"chat_id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ChatOwnership) TableName() string { return "chat_ownerships" }

// AnonymousChatLog holds one row per anonymous message, counted per IP.
type AnonymousChatLog struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(64);not null;index:idx_anon_ip_created,priority:1" json:"ip_address"`
	ChatID    string    `gorm:"column:chat_id;type:varchar(128)" json:"chat_id"`
	CreatedAt time.Time `gorm:"index:idx_anon_ip_created,priority:2" json:"created_at"`
}

func (AnonymousChatLog) TableName() string { return "anonymous_chat_logs" }
