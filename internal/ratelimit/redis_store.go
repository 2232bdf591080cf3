package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a KeyedStore backed by Redis, used when multiple sidecar
// instances must share one rate limit counter per key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client as a KeyedStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr increments key, setting ttl only when the key is newly created so a
// burst of requests within a window never resets its own expiry.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
