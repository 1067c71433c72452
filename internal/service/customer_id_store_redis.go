package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCustomerIDStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCustomerIDStore(client redis.UniversalClient, prefix string) *RedisCustomerIDStore {
	if prefix == "" {
		prefix = "bna_customer_id"
	}
	return &RedisCustomerIDStore{client: client, prefix: prefix}
}

func (s *RedisCustomerIDStore) Get(ctx context.Context, identityKey string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(identityKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

func (s *RedisCustomerIDStore) Set(ctx context.Context, identityKey, customerID string, ttl time.Duration) error {
	if ttl <= 0 || customerID == "" {
		return nil
	}
	return s.client.Set(ctx, s.key(identityKey), customerID, ttl).Err()
}

func (s *RedisCustomerIDStore) Delete(ctx context.Context, identityKey string) error {
	return s.client.Del(ctx, s.key(identityKey)).Err()
}

// CleanupExpired is a no-op: redis expires the keys itself.
func (s *RedisCustomerIDStore) CleanupExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (s *RedisCustomerIDStore) key(identityKey string) string {
	return fmt.Sprintf("%s:%s", s.prefix, identityKey)
}
