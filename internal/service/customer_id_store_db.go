package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

type DBCustomerIDStore struct {
	db *gorm.DB
}

func NewDBCustomerIDStore(db *gorm.DB) *DBCustomerIDStore {
	return &DBCustomerIDStore{db: db}
}

func (s *DBCustomerIDStore) Get(ctx context.Context, identityKey string) (string, bool, error) {
	var link domain.CustomerLink
	err := s.db.WithContext(ctx).
		Where("identity_key = ? AND expires_at > ?", identityKey, time.Now().UTC()).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return link.CustomerID, true, nil
}

func (s *DBCustomerIDStore) Set(ctx context.Context, identityKey, customerID string, ttl time.Duration) error {
	if ttl <= 0 || customerID == "" {
		return nil
	}
	now := time.Now().UTC()
	link := domain.CustomerLink{IdentityKey: identityKey, CustomerID: customerID, ExpiresAt: now.Add(ttl)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"customer_id", "expires_at", "updated_at"}),
	}).Create(&link).Error
}

func (s *DBCustomerIDStore) Delete(ctx context.Context, identityKey string) error {
	return s.db.WithContext(ctx).Where("identity_key = ?", identityKey).Delete(&domain.CustomerLink{}).Error
}

func (s *DBCustomerIDStore) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	ids := s.db.WithContext(ctx).Model(&domain.CustomerLink{}).
		Select("id").
		Where("expires_at <= ?", now.UTC()).
		Order("id ASC").
		Limit(batchSize)
	res := s.db.WithContext(ctx).Where("id IN (?)", ids).Delete(&domain.CustomerLink{})
	return res.RowsAffected, res.Error
}
