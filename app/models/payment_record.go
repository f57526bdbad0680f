package models

import "time"

const (
	PaymentStatusProcessing = "processing"
	PaymentStatusPaid       = "paid"
)

// PaymentRecord is the local mirror of one provider payment. The unique index
// on ExternalPaymentID is what makes fulfillment idempotent: at most one row per
// provider payment, written only by the fulfillment saga.
type PaymentRecord struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	ExternalPaymentID    string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_records_external" json:"external_payment_id"`
	OwnerID              uint      `gorm:"index" json:"owner_id"`
	LinkedSubscriptionID *uint     `gorm:"index" json:"linked_subscription_id,omitempty"`
	LinkedJobID          *uint     `gorm:"index" json:"linked_job_id,omitempty"`
	AmountCents          int64     `json:"amount_cents"`
	Currency             string    `gorm:"type:varchar(3)" json:"currency"`
	Status               string    `gorm:"type:varchar(20);not null;default:'processing'" json:"status"`
	ProviderStatus       string    `gorm:"type:varchar(40)" json:"provider_status"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLinked reports whether the record already points at an order.
func (p *PaymentRecord) IsLinked() bool {
	return p.LinkedSubscriptionID != nil || p.LinkedJobID != nil
}

// LinkedOrder returns the order the record points at, if any.
func (p *PaymentRecord) LinkedOrder() (OrderRef, bool) {
	switch {
	case p.LinkedSubscriptionID != nil:
		return OrderRef{Kind: OrderKindSubscription, ID: *p.LinkedSubscriptionID}, true
	case p.LinkedJobID != nil:
		return OrderRef{Kind: OrderKindJob, ID: *p.LinkedJobID}, true
	default:
		return OrderRef{}, false
	}
}

// Link points the record at ref.
func (p *PaymentRecord) Link(ref OrderRef) {
	id := ref.ID
	switch ref.Kind {
	case OrderKindSubscription:
		p.LinkedSubscriptionID = &id
		p.LinkedJobID = nil
	case OrderKindJob:
		p.LinkedJobID = &id
		p.LinkedSubscriptionID = nil
	}
}
