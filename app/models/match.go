package models

import "time"

const (
	MatchStatusOpen     = "open"
	MatchStatusAccepted = "accepted"
	MatchStatusRejected = "rejected"
)

// OrderKind tells which table a Match or PaymentRecord points at.
type OrderKind string

const (
	OrderKindSubscription OrderKind = "subscription"
	OrderKindJob          OrderKind = "job"
)

// OrderRef identifies the order a saga run produced.
type OrderRef struct {
	Kind OrderKind `json:"kind"`
	ID   uint      `json:"id"`
}

// Match links a cleaner to an order, one per order. CleanerID stays nil
// until someone is assigned manually when no cleaner could be selected.
type Match struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderKind    OrderKind `gorm:"type:varchar(20);not null;uniqueIndex:ux_matches_order,priority:1" json:"order_kind"`
	OrderID      uint      `gorm:"not null;uniqueIndex:ux_matches_order,priority:2" json:"order_id"`
	CleanerID    *uint     `gorm:"index" json:"cleaner_id"`
	Status       string    `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	AutoAssigned bool      `gorm:"default:false" json:"auto_assigned"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Match) OrderRef() OrderRef {
	return OrderRef{Kind: m.OrderKind, ID: m.OrderID}
}
