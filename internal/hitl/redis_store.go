package hitl

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, using native key TTL so expired
// rows vanish without a background sweep.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client as a hitl Store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "hitl:"}
}

func (s *RedisStore) Save(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.Set(ctx, s.prefix+token, data, ttl).Err()
}

// Take uses GETDEL so the read-and-delete is a single atomic round trip;
// a key that expired naturally in Redis simply reports not-found, which
// Engine.Resume returns as ErrNotFound (callers treat ErrExpired the same).
func (s *RedisStore) Take(ctx context.Context, token string) ([]byte, time.Time, bool, error) {
	data, err := s.client.GetDel(ctx, s.prefix+token).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	// Redis already enforced the TTL; report an expiry far in the future
	// so Engine.Resume's expiry check is a no-op for this backend.
	return data, time.Now().Add(time.Hour), true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
