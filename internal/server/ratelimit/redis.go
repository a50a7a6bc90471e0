package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterClient is the subset of redis.Cmdable the limiter calls.
type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter counts with INCR on a per-window key that expires shortly
// after its window ends.
type RedisLimiter struct {
	client    counterClient
	limit     int
	keyPrefix string
	now       func() time.Time
}

// NewRedisLimiter allows perWindow requests per key in each Window, counted
// in Redis so the limit holds across instances.
func NewRedisLimiter(client redis.Cmdable, perWindow int) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		limit:     perWindow,
		keyPrefix: "libsync:ratelimit:",
		now:       time.Now,
	}
}

// NewRedisClient opens a client for addr. The caller owns Close.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.now()
	start := windowStart(now)
	counterKey := r.keyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	n, err := r.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", counterKey, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, counterKey, 2*Window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", counterKey, err)
		}
	}

	if n > int64(r.limit) {
		return false, untilNextWindow(now), nil
	}
	return true, 0, nil
}
