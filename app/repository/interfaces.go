package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
)

// AccountRepository defines the interface for account-related database operations
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByProviderCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	UpdateProviderCustomerID(ctx context.Context, id uint, customerID string) error
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
	ListByRole(ctx context.Context, role string, limit int) ([]models.Account, error)
}

// AddressRepository defines the interface for address operations
type AddressRepository interface {
	Create(ctx context.Context, address *models.Address) error
	GetByID(ctx context.Context, id uint) (*models.Address, error)
}

// SubscriptionRepository defines the interface for recurring orders
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id uint) (*models.Subscription, error)
	LatestOpenByAccount(ctx context.Context, accountID uint) (*models.Subscription, error)
	SaveRetryState(ctx context.Context, sub *models.Subscription) error
}

// JobRepository defines the interface for one-off orders
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uint) (*models.Job, error)
}

// PaymentRecordRepository defines the interface for payment records. Claim and
// the unique index on external_payment_id are the only way a row is inserted.
type PaymentRecordRepository interface {
	GetByExternalID(ctx context.Context, externalPaymentID string) (*models.PaymentRecord, error)
	Claim(ctx context.Context, record *models.PaymentRecord) (bool, *models.PaymentRecord, error)
	Save(ctx context.Context, record *models.PaymentRecord) error
	CountByOwner(ctx context.Context, ownerID uint) (int64, error)
}

// MatchRepository defines the interface for cleaner assignments
type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	GetByOrder(ctx context.Context, ref models.OrderRef) (*models.Match, error)
	CountByOrder(ctx context.Context, ref models.OrderRef) (int64, error)
}

// InvoiceRepository defines the interface for invoices
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByPaymentRecordID(ctx context.Context, paymentRecordID uint) (*models.Invoice, error)
	SetDocumentKey(ctx context.Context, id uint, key string) error
}

// NotificationRepository defines the interface for in-app notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListUnread(ctx context.Context, accountID uint) ([]models.Notification, error)
}

// AuditRepository is append-only: there is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLogEntry, error)
}

// WebhookDeliveryRepository defines the interface for the inbound delivery log
type WebhookDeliveryRepository interface {
	CreateIfNotExists(ctx context.Context, delivery *models.WebhookDelivery) (bool, *models.WebhookDelivery, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account         AccountRepository
	Address         AddressRepository
	Subscription    SubscriptionRepository
	Job             JobRepository
	PaymentRecord   PaymentRecordRepository
	Match           MatchRepository
	Invoice         InvoiceRepository
	Notification    NotificationRepository
	Audit           AuditRepository
	WebhookDelivery WebhookDeliveryRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:         NewAccountRepository(db),
		Address:         NewAddressRepository(db),
		Subscription:    NewSubscriptionRepository(db),
		Job:             NewJobRepository(db),
		PaymentRecord:   NewPaymentRecordRepository(db),
		Match:           NewMatchRepository(db),
		Invoice:         NewInvoiceRepository(db),
		Notification:    NewNotificationRepository(db),
		Audit:           NewAuditRepository(db),
		WebhookDelivery: NewWebhookDeliveryRepository(db),
	}
}
