package repository

import (
	"errors"
	"sync"

	"gorm.io/gorm"
)

// ErrNoPaymentStore is returned when the shared repositories are requested
// before a database handle was registered.
var ErrNoPaymentStore = errors.New("payment store not initialized")

// Factory builds the repository set over one database handle on first use.
// The idempotency guard and the saga must read the same payment records, so
// every webhook component takes its repositories from one Factory.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// Repositories returns the shared set.
func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	sharedMu      sync.RWMutex
	sharedFactory *Factory
)

// InitializeFactory registers db as the process-wide payment store. Later
// calls are ignored until ResetFactory.
func InitializeFactory(db *gorm.DB) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedFactory == nil {
		sharedFactory = NewFactory(db)
	}
}

// ResetFactory drops the registered store.
func ResetFactory() {
	sharedMu.Lock()
	sharedFactory = nil
	sharedMu.Unlock()
}

// SharedRepositories returns the repositories over the registered store.
func SharedRepositories() (*Repositories, error) {
	sharedMu.RLock()
	f := sharedFactory
	sharedMu.RUnlock()
	if f == nil {
		return nil, ErrNoPaymentStore
	}
	return f.Repositories(), nil
}
