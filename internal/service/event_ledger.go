package service

import (
	"context"
	"sync"
	"time"
)

type LedgerState string

const (
	LedgerStateNew        LedgerState = "new"
	LedgerStateDuplicate  LedgerState = "duplicate"
	LedgerStateConflict   LedgerState = "conflict"
	LedgerStateInProgress LedgerState = "in_progress"
)

const (
	ledgerStatusProcessing = "processing"
	ledgerStatusCompleted  = "completed"
)

// EventLedger deduplicates webhook deliveries by remote event id. Begin
// claims an id, Complete seals it and Release gives it back after a failure.
type EventLedger interface {
	Begin(ctx context.Context, eventID, fingerprint string, ttl time.Duration) (LedgerState, error)
	Complete(ctx context.Context, eventID, fingerprint string, ttl time.Duration) error
	Release(ctx context.Context, eventID, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type ledgerEntry struct {
	fingerprint string
	status      string
	expiresAt   time.Time
}

type InMemoryEventLedger struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
}

func NewInMemoryEventLedger() *InMemoryEventLedger {
	return &InMemoryEventLedger{entries: map[string]ledgerEntry{}}
}

func (l *InMemoryEventLedger) Begin(_ context.Context, eventID, fingerprint string, ttl time.Duration) (LedgerState, error) {
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok || !now.Before(entry.expiresAt) {
		l.entries[eventID] = ledgerEntry{fingerprint: fingerprint, status: ledgerStatusProcessing, expiresAt: now.Add(ttl)}
		return LedgerStateNew, nil
	}
	return ledgerStateOf(entry.fingerprint, entry.status, fingerprint), nil
}

func (l *InMemoryEventLedger) Complete(_ context.Context, eventID, fingerprint string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok || entry.fingerprint != fingerprint {
		return nil
	}
	entry.status = ledgerStatusCompleted
	entry.expiresAt = time.Now().UTC().Add(ttl)
	l.entries[eventID] = entry
	return nil
}

func (l *InMemoryEventLedger) Release(_ context.Context, eventID, fingerprint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[eventID]; ok && entry.fingerprint == fingerprint && entry.status == ledgerStatusProcessing {
		delete(l.entries, eventID)
	}
	return nil
}

func (l *InMemoryEventLedger) CleanupExpired(_ context.Context, now time.Time, batchSize int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var deleted int64
	for id, entry := range l.entries {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		if !now.Before(entry.expiresAt) {
			delete(l.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func ledgerStateOf(storedFingerprint, status, fingerprint string) LedgerState {
	if storedFingerprint != fingerprint {
		return LedgerStateConflict
	}
	if status == ledgerStatusCompleted {
		return LedgerStateDuplicate
	}
	return LedgerStateInProgress
}
