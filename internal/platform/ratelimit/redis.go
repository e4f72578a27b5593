package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const bucketKeyPrefix = "rl:bucket:"

// Redis is a fixed-window limiter shared across instances. INCR plus a
// window-scoped key keeps the check to one round trip.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	slot := now.UnixNano() / int64(l.window)
	bucketKey := fmt.Sprintf("%s%s:%d", bucketKeyPrefix, key, slot)

	pipe := l.client.Pipeline()
	count := pipe.Incr(ctx, bucketKey)
	pipe.PExpire(ctx, bucketKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	n := int(count.Val())
	resetAt := time.Unix(0, (slot+1)*int64(l.window))

	if n > l.limit {
		return &Result{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: resetAt}, nil
	}
	return &Result{Allowed: true, Limit: l.limit, Remaining: l.limit - n, ResetAt: resetAt}, nil
}
