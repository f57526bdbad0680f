package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
	"github.com/cleanconnect/cleanconnect/internal/pkg/testutil"
)

func TestEmitDefaultsActor(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewAuditRepository(db)
	em := NewEmitter(repo)

	require.NoError(t, em.Emit(context.Background(), Entry{EntityType: EntityMatch, EntityID: 5, Action: "created", Detail: "auto_assigned=true"}))

	entries, err := repo.ListByEntity(context.Background(), EntityMatch, "5")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActorWebhook, entries[0].ActorID)
	assert.Equal(t, "created", entries[0].Action)
	assert.False(t, entries[0].CreatedAt.IsZero())
}
