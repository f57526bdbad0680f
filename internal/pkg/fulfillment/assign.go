package fulfillment

import (
	"context"

	"github.com/cleanconnect/cleanconnect/app/models"
)

// CleanerSelector picks a cleaner for a new order from candidates. It
// returns nil when nobody fits.
type CleanerSelector interface {
	SelectCleaner(ctx context.Context, order models.OrderRef, candidates []models.Account) *models.Account
}

// FirstAvailable takes the first candidate in store order.
type FirstAvailable struct{}

func (FirstAvailable) SelectCleaner(_ context.Context, _ models.OrderRef, candidates []models.Account) *models.Account {
	for i := range candidates {
		if candidates[i].IsCleaner() {
			return &candidates[i]
		}
	}
	return nil
}

// SelectorFunc adapts a function to CleanerSelector.
type SelectorFunc func(ctx context.Context, order models.OrderRef, candidates []models.Account) *models.Account

func (f SelectorFunc) SelectCleaner(ctx context.Context, order models.OrderRef, candidates []models.Account) *models.Account {
	return f(ctx, order, candidates)
}
