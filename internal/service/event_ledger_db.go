package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

type DBEventLedger struct {
	db *gorm.DB
}

func NewDBEventLedger(db *gorm.DB) *DBEventLedger {
	return &DBEventLedger{db: db}
}

func (l *DBEventLedger) Begin(ctx context.Context, eventID, fingerprint string, ttl time.Duration) (LedgerState, error) {
	now := time.Now().UTC()
	state := LedgerStateNew
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.WebhookEventRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("event_id = ?", eventID).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&domain.WebhookEventRecord{
				EventID:         eventID,
				FingerprintHash: fingerprint,
				Status:          ledgerStatusProcessing,
				ExpiresAt:       now.Add(ttl),
			}).Error
		case err != nil:
			return err
		}
		if !now.Before(rec.ExpiresAt) {
			return tx.Model(&rec).Updates(map[string]any{
				"fingerprint_hash": fingerprint,
				"status":           ledgerStatusProcessing,
				"expires_at":       now.Add(ttl),
			}).Error
		}
		state = ledgerStateOf(rec.FingerprintHash, rec.Status, fingerprint)
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another delivery inserted the same id first
		return LedgerStateInProgress, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

func (l *DBEventLedger) Complete(ctx context.Context, eventID, fingerprint string, ttl time.Duration) error {
	return l.db.WithContext(ctx).Model(&domain.WebhookEventRecord{}).
		Where("event_id = ? AND fingerprint_hash = ?", eventID, fingerprint).
		Updates(map[string]any{"status": ledgerStatusCompleted, "expires_at": time.Now().UTC().Add(ttl)}).Error
}

func (l *DBEventLedger) Release(ctx context.Context, eventID, fingerprint string) error {
	return l.db.WithContext(ctx).
		Where("event_id = ? AND fingerprint_hash = ? AND status = ?", eventID, fingerprint, ledgerStatusProcessing).
		Delete(&domain.WebhookEventRecord{}).Error
}

func (l *DBEventLedger) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	ids := l.db.WithContext(ctx).Model(&domain.WebhookEventRecord{}).
		Select("id").
		Where("expires_at <= ?", now.UTC()).
		Order("id ASC").
		Limit(batchSize)
	res := l.db.WithContext(ctx).Where("id IN (?)", ids).Delete(&domain.WebhookEventRecord{})
	return res.RowsAffected, res.Error
}
