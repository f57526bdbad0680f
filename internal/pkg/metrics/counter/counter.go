package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	webhookTotalsKey = "webhook:counters:totals"
	webhookDailyKey  = "webhook:counters:daily:%s"
	dailyTTL         = 35 * 24 * time.Hour
)

// Webhook counts webhook outcomes in Redis hashes. Fields are
// "<event kind>:<outcome>".
type Webhook struct {
	rdb *redis.Client
	now func() time.Time
}

func NewWebhook(rdb *redis.Client) *Webhook {
	return &Webhook{rdb: rdb, now: time.Now}
}

// Add increments the total and today's counter for kind/outcome.
func (w *Webhook) Add(ctx context.Context, kind, outcome string) error {
	if w == nil || w.rdb == nil {
		return nil
	}
	field := kind + ":" + outcome
	dayKey := fmt.Sprintf(webhookDailyKey, w.now().UTC().Format("2006-01-02"))

	pipe := w.rdb.TxPipeline()
	pipe.HIncrBy(ctx, webhookTotalsKey, field, 1)
	pipe.HIncrBy(ctx, dayKey, field, 1)
	pipe.Expire(ctx, dayKey, dailyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns all-time counters.
func (w *Webhook) Totals(ctx context.Context) (map[string]int64, error) {
	return w.read(ctx, webhookTotalsKey)
}

// Day returns the counters of a single UTC day.
func (w *Webhook) Day(ctx context.Context, day time.Time) (map[string]int64, error) {
	return w.read(ctx, fmt.Sprintf(webhookDailyKey, day.UTC().Format("2006-01-02")))
}

func (w *Webhook) read(ctx context.Context, key string) (map[string]int64, error) {
	data, err := w.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
