package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cleanconnect/cleanconnect/app/models"
)

type paymentRecordRepository struct {
	db *gorm.DB
}

// NewPaymentRecordRepository creates a payment record repository backed by GORM.
func NewPaymentRecordRepository(db *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: db}
}

func (r *paymentRecordRepository) GetByExternalID(ctx context.Context, externalPaymentID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.WithContext(ctx).Where("external_payment_id = ?", externalPaymentID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Claim inserts record unless a row with the same external payment id exists.
// It reports whether this call created the row and returns the stored row
// either way.
func (r *paymentRecordRepository) Claim(ctx context.Context, record *models.PaymentRecord) (bool, *models.PaymentRecord, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_payment_id"}},
		DoNothing: true,
	}).Create(record)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByExternalID(ctx, record.ExternalPaymentID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *paymentRecordRepository) Save(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *paymentRecordRepository) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}
