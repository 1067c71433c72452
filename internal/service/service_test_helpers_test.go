package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/repository"
)

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(
		&domain.Order{},
		&domain.Transaction{},
		&domain.OrderNote{},
		&domain.OrderStatusTransition{},
		&domain.CustomerLink{},
		&domain.WebhookEventRecord{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPaymentAPI struct {
	createFn func(ctx context.Context, payload bna.CheckoutPayload) (*bna.CheckoutToken, error)
	searchFn func(ctx context.Context, email string) ([]bna.Customer, error)
	listFn   func(ctx context.Context) ([]bna.Customer, error)
	statusFn func(ctx context.Context, id string) (*bna.TransactionStatus, error)
	pingFn   func(ctx context.Context) bool
}

func (s *stubPaymentAPI) CreateCheckoutToken(ctx context.Context, payload bna.CheckoutPayload) (*bna.CheckoutToken, error) {
	if s.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.createFn(ctx, payload)
}

func (s *stubPaymentAPI) SearchCustomers(ctx context.Context, email string) ([]bna.Customer, error) {
	if s.searchFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.searchFn(ctx, email)
}

func (s *stubPaymentAPI) ListCustomers(ctx context.Context) ([]bna.Customer, error) {
	if s.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.listFn(ctx)
}

func (s *stubPaymentAPI) GetTransactionStatus(ctx context.Context, id string) (*bna.TransactionStatus, error) {
	if s.statusFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.statusFn(ctx, id)
}

func (s *stubPaymentAPI) TestConnection(ctx context.Context) bool {
	if s.pingFn == nil {
		return false
	}
	return s.pingFn(ctx)
}

type recordingEffects struct {
	mu       sync.Mutex
	complete []uint
}

func (e *recordingEffects) PaymentComplete(_ context.Context, order domain.Order, _ string) {
	e.mu.Lock()
	e.complete = append(e.complete, order.ID)
	e.mu.Unlock()
}

func (e *recordingEffects) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.complete)
}

func conflictError() error {
	return &bna.Error{Kind: bna.KindConflict, StatusCode: 409, Message: "customer already exists"}
}

func inlineCheckout(email string) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		IframeID: "iframe-1",
		Customer: domain.CustomerRef{Info: &domain.CustomerInfo{Email: email, FirstName: "Ada", LastName: "Lovelace"}},
		Items:    []domain.LineItem{{Description: "Widget", Price: decimal.RequireFromString("10.00"), Quantity: 2}},
		Subtotal: decimal.RequireFromString("20.00"),
	}
}

type orderFixture struct {
	db      *gorm.DB
	repo    repository.OrderRepository
	effects *recordingEffects
	machine *OrderStatusService
	seq     int
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := newServiceDBForTest(t)
	repo := repository.NewOrderRepository(db)
	effects := &recordingEffects{}
	return &orderFixture{db: db, repo: repo, effects: effects, machine: NewOrderStatusService(repo, effects, discardLogger())}
}

func (f *orderFixture) seed(t *testing.T, status domain.OrderStatus, total, token string) domain.Order {
	t.Helper()
	f.seq++
	order := &domain.Order{Number: fmt.Sprintf("ord-%d-%s", f.seq, token), Status: status, Total: decimal.RequireFromString(total), Currency: "CAD"}
	if err := f.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if token != "" {
		if _, err := f.machine.BindTransaction(context.Background(), order.ID, token, SourceCheckout); err != nil {
			t.Fatalf("bind transaction: %v", err)
		}
	}
	return *order
}

func (f *orderFixture) notes(t *testing.T, orderID uint) []domain.OrderNote {
	t.Helper()
	page, err := f.repo.ListNotes(context.Background(), orderID, repository.PageRequest{PageSize: repository.MaxPageSize})
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	return page.Items
}

func (f *orderFixture) reload(t *testing.T, orderID uint) domain.Order {
	t.Helper()
	order, err := f.repo.FindByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return *order
}
