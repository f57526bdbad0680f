package models

import (
	"strings"
	"time"
)

// Address belongs to the account that created it. One address is created per
// fulfillment run and addresses are not shared between accounts.
type Address struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"not null;index" json:"account_id"`
	Street      string    `gorm:"type:varchar(200)" json:"street"`
	HouseNumber string    `gorm:"type:varchar(20)" json:"house_number"`
	Addition    string    `gorm:"type:varchar(20)" json:"addition"`
	PostalCode  string    `gorm:"type:varchar(16);index" json:"postal_code"`
	City        string    `gorm:"type:varchar(120)" json:"city"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizePostalCode upper-cases a postal code and strips inner spaces ("1234 ab" -> "1234AB").
func NormalizePostalCode(pc string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pc), " ", ""))
}
