package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/internal/pkg/testutil"
)

func TestLockerExcludesSecondHolder(t *testing.T) {
	client := testutil.NewTestRedis(t, 13)
	locker := NewLocker(client, "test:lock:", time.Minute)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "pi_1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "pi_1")
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Acquire(ctx, "pi_2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	again, err := locker.Acquire(ctx, "pi_1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLockReleaseLeavesForeignToken(t *testing.T) {
	client := testutil.NewTestRedis(t, 13)
	locker := NewLocker(client, "test:lock:", time.Minute)
	ctx := context.Background()

	lk, err := locker.Acquire(ctx, "pi_3")
	require.NoError(t, err)

	require.NoError(t, client.Set(ctx, lk.Key(), "someone-else", time.Minute).Err())
	require.NoError(t, lk.Release(ctx))

	val, err := client.Get(ctx, lk.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
