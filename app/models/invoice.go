package models

import "time"

// Invoice is generated after a successful payment. DocumentKey is empty when
// document archiving is disabled.
type Invoice struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Number          string    `gorm:"type:varchar(40);not null;uniqueIndex" json:"number"`
	AccountID       uint      `gorm:"not null;index" json:"account_id"`
	PaymentRecordID uint      `gorm:"not null;index" json:"payment_record_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `gorm:"type:varchar(3)" json:"currency"`
	DocumentKey     string    `gorm:"type:varchar(255)" json:"document_key"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
