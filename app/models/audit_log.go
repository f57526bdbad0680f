package models

import "time"

const AuditActorWebhook = "system:webhook"

// AuditLogEntry is an append-only record of a state-changing step. Rows are
// never updated or deleted.
type AuditLogEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"type:varchar(40);not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID   string    `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Action     string    `gorm:"type:varchar(60);not null" json:"action"`
	ActorID    string    `gorm:"type:varchar(64);not null" json:"actor_id"`
	Detail     string    `gorm:"type:text" json:"detail"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }
