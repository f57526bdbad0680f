// Package audit appends immutable records of state-changing steps.
package audit

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
)

const (
	EntityAccount       = "account"
	EntityAddress       = "address"
	EntitySubscription  = "subscription"
	EntityJob           = "job"
	EntityPaymentRecord = "payment_record"
	EntityInvoice       = "invoice"
	EntityMatch         = "match"
)

// Entry is one audit record before it is stored.
type Entry struct {
	EntityType string
	EntityID   uint
	Action     string
	ActorID    string
	Detail     string
}

// Emitter writes entries to the append-only audit log.
type Emitter struct {
	repo repository.AuditRepository
}

func NewEmitter(repo repository.AuditRepository) *Emitter {
	return &Emitter{repo: repo}
}

// Emit stores e. Failures are logged and returned but callers treat them as
// non-fatal.
func (em *Emitter) Emit(ctx context.Context, e Entry) error {
	actor := e.ActorID
	if actor == "" {
		actor = models.AuditActorWebhook
	}
	row := &models.AuditLogEntry{
		EntityType: e.EntityType,
		EntityID:   fmt.Sprintf("%d", e.EntityID),
		Action:     e.Action,
		ActorID:    actor,
		Detail:     e.Detail,
	}
	if err := em.repo.Append(ctx, row); err != nil {
		log.Errorw("[Audit] Append failed", "entity", e.EntityType, "entity_id", e.EntityID, "action", e.Action, "error", err)
		return err
	}
	return nil
}
