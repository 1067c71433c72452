package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisTokenCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTokenCacheStore(client redis.UniversalClient, prefix string) *RedisTokenCacheStore {
	if prefix == "" {
		prefix = "bna_token_cache"
	}
	return &RedisTokenCacheStore{client: client, prefix: prefix}
}

func (s *RedisTokenCacheStore) Get(ctx context.Context, key string) (CachedToken, bool, error) {
	raw, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedToken{}, false, nil
	}
	if err != nil {
		return CachedToken{}, false, err
	}
	var token CachedToken
	if err := json.Unmarshal(raw, &token); err != nil {
		_ = s.client.Del(ctx, s.dataKey(key)).Err()
		return CachedToken{}, false, nil
	}
	if !token.Valid(time.Now().UTC()) {
		return CachedToken{}, false, nil
	}
	return token, true, nil
}

func (s *RedisTokenCacheStore) Set(ctx context.Context, token CachedToken) error {
	ttl := time.Until(token.ExpiresAt)
	if token.Token == "" || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode cached token: %w", err)
	}
	dataKey := s.dataKey(token.CacheKey)
	index := s.indexKey()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, payload, ttl)
	pipe.SAdd(ctx, index, dataKey)
	pipe.Expire(ctx, index, ttl+time.Minute)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisTokenCacheStore) Delete(ctx context.Context, key string) error {
	dataKey := s.dataKey(key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, dataKey)
	pipe.SRem(ctx, s.indexKey(), dataKey)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisTokenCacheStore) Clear(ctx context.Context) error {
	index := s.indexKey()
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, index)
	_, err = pipe.Exec(ctx)
	return err
}

// CleanupExpired drops index members whose data key redis already expired.
func (s *RedisTokenCacheStore) CleanupExpired(ctx context.Context, _ time.Time, batchSize int) (int64, error) {
	index := s.indexKey()
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	var deleted int64
	for _, key := range keys {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		exists, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			return deleted, err
		}
		if exists == 0 {
			if err := s.client.SRem(ctx, index, key).Err(); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *RedisTokenCacheStore) dataKey(cacheKey string) string {
	return fmt.Sprintf("%s:data:%s", s.prefix, cacheKey)
}

func (s *RedisTokenCacheStore) indexKey() string {
	return fmt.Sprintf("%s:index:all", s.prefix)
}
