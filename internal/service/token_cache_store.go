package service

import (
	"context"
	"sync"
	"time"
)

type CachedToken struct {
	Token     string    `json:"token"`
	CacheKey  string    `json:"cache_key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t CachedToken) Valid(now time.Time) bool {
	return t.Token != "" && now.Before(t.ExpiresAt)
}

type TokenCacheStore interface {
	Get(ctx context.Context, key string) (CachedToken, bool, error)
	Set(ctx context.Context, token CachedToken) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type InMemoryTokenCacheStore struct {
	mu      sync.RWMutex
	entries map[string]CachedToken
	now     func() time.Time
}

func NewInMemoryTokenCacheStore() *InMemoryTokenCacheStore {
	return &InMemoryTokenCacheStore{entries: map[string]CachedToken{}, now: time.Now}
}

func (s *InMemoryTokenCacheStore) Get(_ context.Context, key string) (CachedToken, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return CachedToken{}, false, nil
	}
	if !entry.Valid(s.now().UTC()) {
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur.ExpiresAt.Equal(entry.ExpiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return CachedToken{}, false, nil
	}
	return entry, true, nil
}

func (s *InMemoryTokenCacheStore) Set(_ context.Context, token CachedToken) error {
	if !token.Valid(s.now().UTC()) {
		return nil
	}
	s.mu.Lock()
	s.entries[token.CacheKey] = token
	s.mu.Unlock()
	return nil
}

func (s *InMemoryTokenCacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryTokenCacheStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = map[string]CachedToken{}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryTokenCacheStore) CleanupExpired(_ context.Context, now time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, entry := range s.entries {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		if !entry.Valid(now) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
