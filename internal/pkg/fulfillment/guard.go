package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
	"github.com/cleanconnect/cleanconnect/internal/pkg/cache"
)

// Decision is the result of an idempotency check.
type Decision struct {
	// Duplicate is set when a linked payment record exists. Existing then
	// holds the linkage to report back.
	Duplicate bool
	// Existing is an earlier record. When it is not linked the saga must
	// update it instead of inserting a new one.
	Existing *models.PaymentRecord
}

// Guard answers whether a provider payment already produced its effects.
type Guard struct {
	payments repository.PaymentRecordRepository
}

func NewGuard(payments repository.PaymentRecordRepository) *Guard {
	return &Guard{payments: payments}
}

func (g *Guard) Check(ctx context.Context, externalPaymentID string) (Decision, error) {
	record, err := g.payments.GetByExternalID(ctx, externalPaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("lookup payment record %s: %w", externalPaymentID, err)
	}
	return Decision{Duplicate: record.IsLinked(), Existing: record}, nil
}

// Lock is a held per-payment lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes runs for the same key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

type redisLocker struct {
	locker *cache.Locker
}

// NewRedisLocker adapts a cache.Locker. Contention is reported as
// apperr.ErrSagaInProgress.
func NewRedisLocker(l *cache.Locker) Locker {
	return &redisLocker{locker: l}
}

func (r *redisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	lk, err := r.locker.Acquire(ctx, key)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, fmt.Errorf("%s: %w", key, apperr.ErrSagaInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return lk, nil
}
