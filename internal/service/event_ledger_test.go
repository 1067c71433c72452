package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

func ledgersForTest(t *testing.T) map[string]EventLedger {
	t.Helper()
	_, client := newRedisClientForTest(t)
	return map[string]EventLedger{
		"memory": NewInMemoryEventLedger(),
		"redis":  NewRedisEventLedger(client, "test_ledger"),
		"db":     NewDBEventLedger(newServiceDBForTest(t)),
	}
}

func TestEventLedgerLifecycle(t *testing.T) {
	for name, ledger := range ledgersForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ttl := time.Hour

			state, err := ledger.Begin(ctx, "evt-1", "fp-a", ttl)
			if err != nil || state != LedgerStateNew {
				t.Fatalf("first begin: state=%s err=%v", state, err)
			}
			if state, _ := ledger.Begin(ctx, "evt-1", "fp-a", ttl); state != LedgerStateInProgress {
				t.Fatalf("expected in_progress while processing, got %s", state)
			}
			if state, _ := ledger.Begin(ctx, "evt-1", "fp-b", ttl); state != LedgerStateConflict {
				t.Fatalf("expected conflict for a different fingerprint, got %s", state)
			}
			if err := ledger.Complete(ctx, "evt-1", "fp-a", ttl); err != nil {
				t.Fatalf("complete: %v", err)
			}
			if state, _ := ledger.Begin(ctx, "evt-1", "fp-a", ttl); state != LedgerStateDuplicate {
				t.Fatalf("expected duplicate after completion, got %s", state)
			}
			if err := ledger.Release(ctx, "evt-1", "fp-a"); err != nil {
				t.Fatalf("release: %v", err)
			}
			if state, _ := ledger.Begin(ctx, "evt-1", "fp-a", ttl); state != LedgerStateDuplicate {
				t.Fatalf("release must not drop a completed event, got %s", state)
			}
		})
	}
}

func TestEventLedgerReleaseAllowsRetry(t *testing.T) {
	for name, ledger := range ledgersForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if state, err := ledger.Begin(ctx, "evt-2", "fp", time.Hour); err != nil || state != LedgerStateNew {
				t.Fatalf("begin: state=%s err=%v", state, err)
			}
			if err := ledger.Release(ctx, "evt-2", "fp"); err != nil {
				t.Fatalf("release: %v", err)
			}
			if state, err := ledger.Begin(ctx, "evt-2", "fp", time.Hour); err != nil || state != LedgerStateNew {
				t.Fatalf("expected retry to start fresh, state=%s err=%v", state, err)
			}
		})
	}
}

func TestDBEventLedgerCleanupExpiredHonorsBatchSize(t *testing.T) {
	db := newServiceDBForTest(t)
	ledger := NewDBEventLedger(db)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		rec := domain.WebhookEventRecord{
			EventID:         fmt.Sprintf("old-%d", i),
			FingerprintHash: "f",
			Status:          ledgerStatusCompleted,
			ExpiresAt:       now.Add(-time.Minute),
		}
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("create expired record %d: %v", i, err)
		}
	}
	fresh := domain.WebhookEventRecord{EventID: "fresh", FingerprintHash: "f", Status: ledgerStatusCompleted, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(&fresh).Error; err != nil {
		t.Fatalf("create fresh record: %v", err)
	}

	deleted, err := ledger.CleanupExpired(context.Background(), now, 2)
	if err != nil {
		t.Fatalf("cleanup expired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted rows with batch=2, got %d", deleted)
	}
	deleted, err = ledger.CleanupExpired(context.Background(), now, 100)
	if err != nil || deleted != 1 {
		t.Fatalf("expected the last expired row deleted, got %d err=%v", deleted, err)
	}

	var remaining []domain.WebhookEventRecord
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].EventID != "fresh" {
		t.Fatalf("expected only the unexpired row to remain, got %+v", remaining)
	}
}

func TestInMemoryEventLedgerExpiredEntryRestarts(t *testing.T) {
	ledger := NewInMemoryEventLedger()
	ctx := context.Background()
	if _, err := ledger.Begin(ctx, "evt", "fp", time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if state, _ := ledger.Begin(ctx, "evt", "other", time.Hour); state != LedgerStateNew {
		t.Fatalf("expired entry should be reclaimable, got %s", state)
	}
	if n, _ := ledger.CleanupExpired(ctx, time.Now().Add(2*time.Hour), 0); n != 1 {
		t.Fatalf("expected one entry swept, got %d", n)
	}
}

func TestDBEventLedgerExpiredClaimRestarts(t *testing.T) {
	ledger := NewDBEventLedger(newServiceDBForTest(t))
	ctx := context.Background()
	if _, err := ledger.Begin(ctx, "evt-claim", "fp", time.Millisecond); err != nil {
		t.Fatalf("begin: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if state, err := ledger.Begin(ctx, "evt-claim", "fp", time.Hour); err != nil || state != LedgerStateNew {
		t.Fatalf("stale claim should be reclaimable, state=%s err=%v", state, err)
	}
}
