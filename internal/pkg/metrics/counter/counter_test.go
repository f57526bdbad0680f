package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/internal/pkg/testutil"
)

func TestWebhookCounters(t *testing.T) {
	rdb := testutil.NewTestRedis(t, 12)
	w := NewWebhook(rdb)
	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	ctx := context.Background()

	require.NoError(t, w.Add(ctx, "payment_succeeded", "ok"))
	require.NoError(t, w.Add(ctx, "payment_succeeded", "ok"))
	require.NoError(t, w.Add(ctx, "payment_failed", "error"))

	totals, err := w.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals["payment_succeeded:ok"])
	assert.Equal(t, int64(1), totals["payment_failed:error"])

	daily, err := w.Day(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, totals, daily)

	ttl, err := rdb.TTL(ctx, "webhook:counters:daily:2026-03-14").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestNilWebhookIsNoop(t *testing.T) {
	var w *Webhook
	assert.NoError(t, w.Add(context.Background(), "x", "y"))
}
