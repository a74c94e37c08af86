// Package ratelimit implements fixed counted windows on top of Redis INCR/EXPIRE.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window admits at most Limit hits per key within Period. Every hit increments
// the counter and arms its expiry only when none is set, in one transaction.
type Window struct {
	client redis.Cmdable
	prefix string
	limit  int64
	period time.Duration
}

func NewWindow(client redis.Cmdable, prefix string, limit int, period time.Duration) *Window {
	return &Window{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		period: period,
	}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (w *Window) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := w.prefix + key

	var incr *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.ExpireNX(ctx, fullKey, w.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", fullKey, err)
	}
	return incr.Val() <= w.limit, nil
}

func (w *Window) Limit() int { return int(w.limit) }
