package service

import (
	"context"
	"sync"
	"time"
)

// CustomerIDStore remembers remote customer ids resolved after a conflict.
type CustomerIDStore interface {
	Get(ctx context.Context, identityKey string) (string, bool, error)
	Set(ctx context.Context, identityKey, customerID string, ttl time.Duration) error
	Delete(ctx context.Context, identityKey string) error
	CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type customerIDEntry struct {
	customerID string
	expiresAt  time.Time
}

type InMemoryCustomerIDStore struct {
	mu      sync.RWMutex
	entries map[string]customerIDEntry
}

func NewInMemoryCustomerIDStore() *InMemoryCustomerIDStore {
	return &InMemoryCustomerIDStore{entries: map[string]customerIDEntry{}}
}

func (s *InMemoryCustomerIDStore) Get(_ context.Context, identityKey string) (string, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[identityKey]
	s.mu.RUnlock()
	if !ok || !time.Now().UTC().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.customerID, true, nil
}

func (s *InMemoryCustomerIDStore) Set(_ context.Context, identityKey, customerID string, ttl time.Duration) error {
	if ttl <= 0 || customerID == "" {
		return nil
	}
	s.mu.Lock()
	s.entries[identityKey] = customerIDEntry{customerID: customerID, expiresAt: time.Now().UTC().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryCustomerIDStore) Delete(_ context.Context, identityKey string) error {
	s.mu.Lock()
	delete(s.entries, identityKey)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryCustomerIDStore) CleanupExpired(_ context.Context, now time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, entry := range s.entries {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
