package models

import (
	"strings"
	"time"
)

const (
	SubscriptionStatusQueued  = "queued"
	SubscriptionStatusActive  = "active"
	SubscriptionStatusPaused  = "paused"
	SubscriptionStatusStopped = "stopped"
)

const (
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

// MaxPaymentRetries is the number of failed recurring payments after which a
// subscription is paused.
const MaxPaymentRetries = 3

// RetryState tracks failed recurring payments. NextRetryDate is only set while
// Count < MaxPaymentRetries.
type RetryState struct {
	Count           int        `gorm:"not null;default:0" json:"retry_count"`
	LastFailureDate *time.Time `gorm:"type:date;default:null" json:"last_failure_date,omitempty"`
	NextRetryDate   *time.Time `gorm:"type:date;default:null;index" json:"next_retry_date,omitempty"`
	FailureReason   string     `gorm:"type:text" json:"failure_reason"`
}

// Subscription is a recurring cleaning order.
type Subscription struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	AccountID         uint       `gorm:"not null;index" json:"account_id"`
	AddressID         uint       `gorm:"not null;index" json:"address_id"`
	Frequency         string     `gorm:"type:varchar(20);not null" json:"frequency"`
	Hours             float64    `gorm:"default:0" json:"hours"`
	UnitPriceCents    int64      `gorm:"not null" json:"unit_price_cents"`
	BundleAmountCents int64      `gorm:"not null" json:"bundle_amount_cents"`
	NextBillingDate   *time.Time `gorm:"type:date;default:null" json:"next_billing_date,omitempty"`
	Status            string     `gorm:"type:varchar(20);not null;default:'queued';index" json:"status"`
	Retry             RetryState `gorm:"embedded;embeddedPrefix:retry_" json:"retry"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeFrequency maps free-form input onto the known frequencies. Unknown
// values return "".
func NormalizeFrequency(f string) string {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "weekly", "week", "wekelijks":
		return FrequencyWeekly
	case "biweekly", "fortnightly", "tweewekelijks", "2-weekly":
		return FrequencyBiweekly
	case "monthly", "month", "maandelijks", "4-weekly":
		return FrequencyMonthly
	default:
		return ""
	}
}

// NextBillingAfter returns the first billing date after day for frequency.
func NextBillingAfter(day time.Time, frequency string) time.Time {
	switch frequency {
	case FrequencyBiweekly:
		return day.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return day.AddDate(0, 1, 0)
	default:
		return day.AddDate(0, 0, 7)
	}
}

// CalendarDay returns midnight UTC of t's calendar date in loc. Date columns
// are stored this way so they do not shift with the server timezone.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
