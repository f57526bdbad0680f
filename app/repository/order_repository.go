package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
)

type addressRepository struct {
	db *gorm.DB
}

// NewAddressRepository creates a new address repository instance
func NewAddressRepository(db *gorm.DB) AddressRepository {
	return &addressRepository{db: db}
}

func (r *addressRepository) Create(ctx context.Context, address *models.Address) error {
	return r.db.WithContext(ctx).Create(address).Error
}

func (r *addressRepository) GetByID(ctx context.Context, id uint) (*models.Address, error) {
	var address models.Address
	if err := r.db.WithContext(ctx).First(&address, id).Error; err != nil {
		return nil, err
	}
	return &address, nil
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// LatestOpenByAccount returns the newest subscription of the account that is not stopped.
func (r *subscriptionRepository) LatestOpenByAccount(ctx context.Context, accountID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status <> ?", accountID, models.SubscriptionStatusStopped).
		Order("id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveRetryState writes the retry columns and status only. A map is used so
// a cleared next retry date is written as NULL.
func (r *subscriptionRepository) SaveRetryState(ctx context.Context, sub *models.Subscription) error {
	updates := map[string]interface{}{
		"retry_count":             sub.Retry.Count,
		"retry_last_failure_date": sub.Retry.LastFailureDate,
		"retry_next_retry_date":   sub.Retry.NextRetryDate,
		"retry_failure_reason":    sub.Retry.FailureReason,
		"status":                  sub.Status,
	}
	return r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepository) GetByID(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

type matchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new match repository instance
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) Create(ctx context.Context, match *models.Match) error {
	return r.db.WithContext(ctx).Create(match).Error
}

func (r *matchRepository) GetByOrder(ctx context.Context, ref models.OrderRef) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).
		Where("order_kind = ? AND order_id = ?", ref.Kind, ref.ID).
		Order("id ASC").
		First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *matchRepository) CountByOrder(ctx context.Context, ref models.OrderRef) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Match{}).
		Where("order_kind = ? AND order_id = ?", ref.Kind, ref.ID).
		Count(&count).Error
	return count, err
}
