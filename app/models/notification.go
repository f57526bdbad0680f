package models

import "time"

const (
	NotificationTypeOrder = "order"
	NotificationTypeMatch = "match"
)

type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"index" json:"account_id"`
	Type        string    `gorm:"type:varchar(50)" json:"type" validate:"oneof=order match"`
	Content     string    `gorm:"type:text" json:"content"`
	IsRead      bool      `gorm:"default:false" json:"is_read"`
	ReferenceID uint      `json:"reference_id"` // id of the order or match the notification is about
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
