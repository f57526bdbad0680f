package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/testutil"
)

func TestPaymentRecordClaimIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPaymentRecordRepository(db)
	ctx := context.Background()

	created, first, err := repo.Claim(ctx, &models.PaymentRecord{ExternalPaymentID: "pi_123", AmountCents: 10000, Currency: "eur"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, first.ID)

	created, second, err := repo.Claim(ctx, &models.PaymentRecord{ExternalPaymentID: "pi_123", AmountCents: 1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(10000), second.AmountCents)

	var count int64
	require.NoError(t, db.Model(&models.PaymentRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPaymentRecordSaveLinksOrder(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPaymentRecordRepository(db)
	ctx := context.Background()

	_, record, err := repo.Claim(ctx, &models.PaymentRecord{ExternalPaymentID: "pi_link"})
	require.NoError(t, err)

	record.Link(models.OrderRef{Kind: models.OrderKindJob, ID: 42})
	record.Status = models.PaymentStatusPaid
	require.NoError(t, repo.Save(ctx, record))

	stored, err := repo.GetByExternalID(ctx, "pi_link")
	require.NoError(t, err)
	assert.True(t, stored.IsLinked())
	require.NotNil(t, stored.LinkedJobID)
	assert.Equal(t, uint(42), *stored.LinkedJobID)
	assert.Equal(t, models.PaymentStatusPaid, stored.Status)
}

func TestPaymentRecordCountByOwner(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPaymentRecordRepository(db)
	ctx := context.Background()

	for _, id := range []string{"pi_a", "pi_b"} {
		_, _, err := repo.Claim(ctx, &models.PaymentRecord{ExternalPaymentID: id, OwnerID: 7})
		require.NoError(t, err)
	}
	_, _, err := repo.Claim(ctx, &models.PaymentRecord{ExternalPaymentID: "pi_c", OwnerID: 8})
	require.NoError(t, err)

	n, err := repo.CountByOwner(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestWebhookDeliveryCreateIfNotExists(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewWebhookDeliveryRepository(db)
	ctx := context.Background()

	newDelivery := func() *models.WebhookDelivery {
		return &models.WebhookDelivery{
			Provider:        models.WebhookProviderStripe,
			ProviderEventID: "evt_1",
			EventType:       "payment.succeeded",
			PayloadJSON:     "{}",
		}
	}

	created, first, err := repo.CreateIfNotExists(ctx, newDelivery())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, first.Attempts)
	assert.False(t, first.Succeeded())

	require.NoError(t, repo.MarkProcessed(ctx, first.ID, ""))

	created, second, err := repo.CreateIfNotExists(ctx, newDelivery())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.True(t, second.Succeeded())
}
