package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "watchdeck:ratelimit:"

// RedisStore is a CounterStore backed by Redis INCR with expiry, giving
// atomic counts that hold across multiple server instances and restarts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment implements CounterStore. INCR and PTTL run in one pipeline so
// concurrent requests for the same key serialize on the Redis side.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	rkey := redisKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	ttl := pipe.PTTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count := incr.Val()
	resetIn := ttl.Val()
	if resetIn < 0 {
		// First hit in a window (or a key left without expiry after a
		// partial failure): start the window now.
		resetIn = window
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return count, resetIn, err
		}
	}
	return count, resetIn, nil
}
