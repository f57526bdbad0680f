package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account in the database
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByEmail retrieves an account by its normalized email address
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByProviderCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	if customerID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	err := r.db.WithContext(ctx).Where("provider_customer_id = ?", customerID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateProviderCustomerID links the payment provider customer to the account.
func (r *accountRepository) UpdateProviderCustomerID(ctx context.Context, id uint, customerID string) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).
		Update("provider_customer_id", customerID).Error
}

// UpdatePasswordHash replaces the stored password hash.
func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).
		Update("password_hash", hash).Error
}

// ListByRole returns accounts with role in store order.
func (r *accountRepository) ListByRole(ctx context.Context, role string, limit int) ([]models.Account, error) {
	var accounts []models.Account
	q := r.db.WithContext(ctx).Where("role = ?", role).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&accounts).Error
	return accounts, err
}
