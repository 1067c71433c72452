package service

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepBatch = 500

type expiringStore interface {
	CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

// Sweeper periodically evicts expired tokens, customer ids and ledger entries.
type Sweeper struct {
	stores   map[string]expiringStore
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(tokens TokenCacheStore, ids CustomerIDStore, ledger EventLedger, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		stores: map[string]expiringStore{
			"token_cache":  tokens,
			"customer_id":  ids,
			"event_ledger": ledger,
		},
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepOnce(ctx, now.UTC())
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) map[string]int64 {
	out := make(map[string]int64, len(s.stores))
	for name, store := range s.stores {
		deleted, err := store.CleanupExpired(ctx, now, defaultSweepBatch)
		if err != nil {
			s.logger.WarnContext(ctx, "sweep failed", "store", name, "error", err)
			continue
		}
		out[name] = deleted
		if deleted > 0 {
			s.logger.DebugContext(ctx, "swept expired entries", "store", name, "deleted", deleted)
		}
	}
	return out
}
