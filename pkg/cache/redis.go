package cache

import (
	"context"
	"time"

	"github.com/studyflow-ai/studyflow/pkg/redis"
)

// RedisStore backs the cache contract with Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key)
	if err != nil {
		if redis.IsNilError(err) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return []byte(value), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, string(value), ttl)
}
