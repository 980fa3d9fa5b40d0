// Package counter keeps cumulative operational counters in one Redis hash so
// every instance adds to the same totals.
package counter

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis hash holding all counters.
const DefaultKey = "schoolpay:counters"

// Counter names.
const (
	WebhookPrefix      = "webhook."
	SweepRuns          = "sweep.runs"
	SweepScanned       = "sweep.scanned"
	SweepUpdated       = "sweep.updated"
	SweepFailed        = "sweep.failed"
	RowRetriesEnqueued = "sweep.row_retries"
	ConceptsPurged     = "concepts.purged"
)

// Counter increments named counters. A nil *Counter discards everything.
type Counter struct {
	client redis.UniversalClient
	key    string
}

func New(client redis.UniversalClient) *Counter {
	return &Counter{client: client, key: DefaultKey}
}

// Add increments name by n. Failures are logged, never returned: counters
// must not fail the operation they describe.
func (c *Counter) Add(ctx context.Context, name string, n int64) {
	if c == nil || c.client == nil || n == 0 {
		return
	}
	if err := c.client.HIncrBy(ctx, c.key, name, n).Err(); err != nil {
		log.Warnf("[Counter] Could not increment %s: %v", name, err)
	}
}

// Incr increments name by one.
func (c *Counter) Incr(ctx context.Context, name string) {
	c.Add(ctx, name, 1)
}

// Snapshot returns all counters. Fields that are not integers are skipped.
func (c *Counter) Snapshot(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	if c == nil || c.client == nil {
		return out, nil
	}
	data, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	for field, raw := range data {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out[field] = v
	}
	return out, nil
}
