package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrVersionConflict     = errors.New("order was modified concurrently")
)

// OrderChange is what a mutation wants persisted. A zero OrderChange means
// the mutation decided nothing needs to happen.
type OrderChange struct {
	Status      *domain.OrderStatus
	Chargeback  *bool
	Transaction *domain.Transaction
	Notes       []domain.OrderNote
	Transition  *domain.OrderStatusTransition
}

func (c OrderChange) Empty() bool {
	return c.Status == nil && c.Chargeback == nil && c.Transaction == nil && len(c.Notes) == 0 && c.Transition == nil
}

// OrderMutator inspects the locked current order and returns the change to
// apply. Returning an error aborts the database transaction.
type OrderMutator func(current domain.Order) (OrderChange, error)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uint) (*domain.Order, error)
	FindByTransactionToken(ctx context.Context, token string) (*domain.Order, error)
	LatestTransaction(ctx context.Context, orderID uint) (*domain.Transaction, error)
	Mutate(ctx context.Context, orderID uint, fn OrderMutator) (domain.Order, error)
	ListNotes(ctx context.Context, orderID uint, page PageRequest) (PageResult[domain.OrderNote], error)
	ListTransitions(ctx context.Context, orderID uint) ([]domain.OrderStatusTransition, error)
}

type GormOrderRepository struct{ db *gorm.DB }

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.Version == 0 {
		order.Version = 1
	}
	order.Number = strings.TrimSpace(order.Number)
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*domain.Order, error) {
	var order domain.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindByTransactionToken resolves the order that first recorded the token.
func (r *GormOrderRepository) FindByTransactionToken(ctx context.Context, token string) (*domain.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrOrderNotFound
	}
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Where("transaction_token = ?", token).
		Order("id ASC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return r.FindByID(ctx, tx.OrderID)
}

func (r *GormOrderRepository) LatestTransaction(ctx context.Context, orderID uint) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// Mutate locks the order row, hands it to fn and persists the returned change
// in the same database transaction. The order update is guarded by the row
// version so a concurrent writer that bypassed the lock is detected.
func (r *GormOrderRepository) Mutate(ctx context.Context, orderID uint, fn OrderMutator) (domain.Order, error) {
	var result domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		change, err := fn(current)
		if err != nil {
			return err
		}
		result = current
		if change.Empty() {
			return nil
		}

		now := time.Now().UTC()
		if change.Status != nil || change.Chargeback != nil {
			updates := map[string]any{
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			}
			if change.Status != nil {
				updates["status"] = *change.Status
				result.Status = *change.Status
			}
			if change.Chargeback != nil {
				updates["chargeback"] = *change.Chargeback
				result.Chargeback = *change.Chargeback
			}
			res := tx.Model(&domain.Order{}).
				Where("id = ? AND version = ?", current.ID, current.Version).
				Updates(updates)
			if res.Error != nil {
				return fmt.Errorf("update order: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
			result.Version = current.Version + 1
			result.UpdatedAt = now
		}

		if change.Transaction != nil {
			row := *change.Transaction
			row.OrderID = current.ID
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
		}
		for _, note := range change.Notes {
			note.OrderID = current.ID
			if err := tx.Create(&note).Error; err != nil {
				return fmt.Errorf("insert note: %w", err)
			}
		}
		if change.Transition != nil {
			row := *change.Transition
			row.OrderID = current.ID
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert transition: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

func (r *GormOrderRepository) ListNotes(ctx context.Context, orderID uint, page PageRequest) (PageResult[domain.OrderNote], error) {
	page = normalizePageRequest(page)
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.OrderNote{}).Where("order_id = ?", orderID)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return PageResult[domain.OrderNote]{}, err
	}
	var notes []domain.OrderNote
	if err := query().Scopes(page.scope()).Order("id ASC").Find(&notes).Error; err != nil {
		return PageResult[domain.OrderNote]{}, err
	}
	return newPageResult(notes, page, total), nil
}

func (r *GormOrderRepository) ListTransitions(ctx context.Context, orderID uint) ([]domain.OrderStatusTransition, error) {
	var rows []domain.OrderStatusTransition
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}
