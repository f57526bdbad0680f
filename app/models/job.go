package models

import "time"

const (
	JobStatusRequested = "requested"
	JobStatusAssigned  = "assigned"
	JobStatusCompleted = "completed"
)

// Job is a one-off cleaning order.
type Job struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AccountID   uint       `gorm:"not null;index" json:"account_id"`
	AddressID   uint       `gorm:"not null;index" json:"address_id"`
	JobType     string     `gorm:"type:varchar(60);not null" json:"job_type"`
	DesiredDate *time.Time `gorm:"type:date;default:null" json:"desired_date,omitempty"`
	Hours       float64    `gorm:"default:0" json:"hours"`
	AmountCents int64      `gorm:"not null" json:"amount_cents"`
	Status      string     `gorm:"type:varchar(20);not null;default:'requested';index" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
