package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/testutil"
)

func TestAccountLookups(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &models.Account{Email: "a@b.com", Role: models.ROLE_CUSTOMER}
	require.NoError(t, repo.Create(ctx, account))

	found, err := repo.GetByEmail(ctx, " A@B.COM ")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = repo.GetByProviderCustomerID(ctx, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.UpdateProviderCustomerID(ctx, account.ID, "cus_1"))
	found, err = repo.GetByProviderCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	hash, err := models.HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, repo.UpdatePasswordHash(ctx, account.ID, hash))
	found, err = repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, found.CheckPassword("s3cret-pass"))
}

func TestAccountListByRoleKeepsStoreOrder(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	for _, a := range []*models.Account{
		{Email: "c1@x.nl", Role: models.ROLE_CLEANER},
		{Email: "cust@x.nl", Role: models.ROLE_CUSTOMER},
		{Email: "c2@x.nl", Role: models.ROLE_CLEANER},
	} {
		require.NoError(t, repo.Create(ctx, a))
	}

	cleaners, err := repo.ListByRole(ctx, models.ROLE_CLEANER, 1)
	require.NoError(t, err)
	require.Len(t, cleaners, 1)
	assert.Equal(t, "c1@x.nl", cleaners[0].Email)

	all, err := repo.ListByRole(ctx, models.ROLE_CLEANER, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSubscriptionSaveRetryStateClearsNextDate(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	sub := &models.Subscription{AccountID: 1, AddressID: 1, Frequency: models.FrequencyWeekly, UnitPriceCents: 2500, BundleAmountCents: 10000, Status: models.SubscriptionStatusActive}
	require.NoError(t, repo.Create(ctx, sub))

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 2)
	sub.Retry = models.RetryState{Count: 2, LastFailureDate: &day, NextRetryDate: &next, FailureReason: "insufficient_funds"}
	require.NoError(t, repo.SaveRetryState(ctx, sub))

	stored, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Retry.Count)
	require.NotNil(t, stored.Retry.NextRetryDate)

	sub.Retry.Count = 3
	sub.Retry.NextRetryDate = nil
	sub.Status = models.SubscriptionStatusPaused
	require.NoError(t, repo.SaveRetryState(ctx, sub))

	stored, err = repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Retry.Count)
	assert.Nil(t, stored.Retry.NextRetryDate)
	assert.Equal(t, models.SubscriptionStatusPaused, stored.Status)

	latest, err := repo.LatestOpenByAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, latest.ID)
}

func TestAuditRepositoryAppendOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	entry := &models.AuditLogEntry{EntityType: "payment_record", EntityID: "7", Action: "created", ActorID: models.AuditActorWebhook}
	require.NoError(t, repo.Append(ctx, entry))
	require.NoError(t, repo.Append(ctx, entry))

	entries, err := repo.ListByEntity(ctx, "payment_record", "7")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}
