package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

type stubTokenCreator struct {
	calls atomic.Int32
	fn    func(n int32) (*bna.CheckoutToken, error)
}

func (s *stubTokenCreator) CreateToken(context.Context, domain.CheckoutRequest, Identity) (*bna.CheckoutToken, error) {
	n := s.calls.Add(1)
	if s.fn != nil {
		return s.fn(n)
	}
	return &bna.CheckoutToken{Token: "tok"}, nil
}

func TestGetOrCreateServesCacheWithoutRemoteCall(t *testing.T) {
	creator := &stubTokenCreator{fn: func(n int32) (*bna.CheckoutToken, error) {
		return &bna.CheckoutToken{Token: "tok-1"}, nil
	}}
	svc := NewTokenService(NewInMemoryTokenCacheStore(), creator, nil, "staging:ak", time.Minute, discardLogger())
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, inlineCheckout("ada@example.com"), Identity{}, false)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetOrCreate(ctx, inlineCheckout("ADA@example.com"), Identity{}, false)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.FromCache || !second.FromCache {
		t.Fatalf("expected miss then hit, got %v/%v", first.FromCache, second.FromCache)
	}
	if second.Token != "tok-1" || first.CacheKey != second.CacheKey {
		t.Fatalf("expected the cached token under the same key, got %+v", second)
	}
	if got := creator.calls.Load(); got != 1 {
		t.Fatalf("expected one remote call, got %d", got)
	}
}

func TestGetOrCreateForceRefreshAlwaysCallsRemote(t *testing.T) {
	creator := &stubTokenCreator{fn: func(n int32) (*bna.CheckoutToken, error) {
		return &bna.CheckoutToken{Token: "tok-" + string(rune('0'+n))}, nil
	}}
	svc := NewTokenService(NewInMemoryTokenCacheStore(), creator, nil, "scope", time.Minute, discardLogger())
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, inlineCheckout("ada@example.com"), Identity{}, false); err != nil {
		t.Fatalf("prime: %v", err)
	}
	refreshed, err := svc.GetOrCreate(ctx, inlineCheckout("ada@example.com"), Identity{}, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.FromCache || refreshed.Token != "tok-2" {
		t.Fatalf("expected a fresh token, got %+v", refreshed)
	}
	cached, err := svc.GetOrCreate(ctx, inlineCheckout("ada@example.com"), Identity{}, false)
	if err != nil {
		t.Fatalf("after refresh: %v", err)
	}
	if cached.Token != "tok-2" {
		t.Fatalf("expected refreshed token to replace the cache entry, got %q", cached.Token)
	}
}

func TestGetOrCreateCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	creator := &stubTokenCreator{fn: func(int32) (*bna.CheckoutToken, error) {
		<-release
		return &bna.CheckoutToken{Token: "tok-shared"}, nil
	}}
	svc := NewTokenService(NewInMemoryTokenCacheStore(), creator, nil, "scope", time.Minute, discardLogger())

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.GetOrCreate(context.Background(), inlineCheckout("ada@example.com"), Identity{}, false)
			tokens[i], errs[i] = res.Token, err
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil || tokens[i] != "tok-shared" {
			t.Fatalf("caller %d: token=%q err=%v", i, tokens[i], errs[i])
		}
	}
	if got := creator.calls.Load(); got != 1 {
		t.Fatalf("expected one remote call for concurrent misses, got %d", got)
	}
}

func TestGetOrCreateExpiryIsEarliestOfTTLAndReported(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reported := now.Add(5 * time.Minute)
	creator := &stubTokenCreator{fn: func(int32) (*bna.CheckoutToken, error) {
		return &bna.CheckoutToken{Token: "tok", ReportedExpiry: reported}, nil
	}}
	clock := now
	store := NewInMemoryTokenCacheStore()
	store.now = func() time.Time { return clock }
	svc := NewTokenService(store, creator, nil, "scope", 25*time.Minute, discardLogger())
	svc.now = func() time.Time { return clock }

	res, err := svc.GetOrCreate(context.Background(), inlineCheckout("ada@example.com"), Identity{}, false)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if !res.ExpiresAt.Equal(reported) {
		t.Fatalf("expected reported expiry %v, got %v", reported, res.ExpiresAt)
	}

	clock = reported.Add(time.Second)
	again, err := svc.GetOrCreate(context.Background(), inlineCheckout("ada@example.com"), Identity{}, false)
	if err != nil {
		t.Fatalf("get token after expiry: %v", err)
	}
	if again.FromCache || creator.calls.Load() != 2 {
		t.Fatalf("expected expired entry to be replaced, from_cache=%v calls=%d", again.FromCache, creator.calls.Load())
	}
}

func TestCacheKeyVariesByCartShapeAndScope(t *testing.T) {
	svc := NewTokenService(NewInMemoryTokenCacheStore(), &stubTokenCreator{}, nil, "staging:ak", time.Minute, discardLogger())
	base := inlineCheckout("ada@example.com")
	key := svc.CacheKey(base)

	otherSubtotal := inlineCheckout("ada@example.com")
	otherSubtotal.Items[0].Quantity = 3
	otherSubtotal.Subtotal = decimal.RequireFromString("30.00")

	otherPayer := inlineCheckout("grace@example.com")
	otherScope := NewTokenService(NewInMemoryTokenCacheStore(), &stubTokenCreator{}, nil, "production:ak", time.Minute, discardLogger())

	if key == svc.CacheKey(otherSubtotal) || key == svc.CacheKey(otherPayer) || key == otherScope.CacheKey(base) {
		t.Fatal("expected distinct keys for different subtotal, payer or scope")
	}
	if key != svc.CacheKey(inlineCheckout(" ADA@example.com")) {
		t.Fatal("expected email case and whitespace not to change the key")
	}
}

func TestGetOrCreatePropagatesCreatorError(t *testing.T) {
	boom := errors.New("remote down")
	creator := &stubTokenCreator{fn: func(int32) (*bna.CheckoutToken, error) { return nil, boom }}
	store := NewInMemoryTokenCacheStore()
	svc := NewTokenService(store, creator, nil, "scope", time.Minute, discardLogger())

	if _, err := svc.GetOrCreate(context.Background(), inlineCheckout("ada@example.com"), Identity{}, false); !errors.Is(err, boom) {
		t.Fatalf("expected creator error, got %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), svc.CacheKey(inlineCheckout("ada@example.com"))); ok {
		t.Fatal("failed creation must not be cached")
	}
}

func orderCheckout(orderID uint) domain.CheckoutRequest {
	req := inlineCheckout("ada@example.com")
	req.OrderID = &orderID
	return req
}

func TestGetOrCreateBindsTokenToRequestedOrder(t *testing.T) {
	f := newOrderFixture(t)
	order := f.seed(t, domain.OrderStatusPending, "20.00", "")
	creator := &stubTokenCreator{fn: func(int32) (*bna.CheckoutToken, error) {
		return &bna.CheckoutToken{Token: "tok-bound"}, nil
	}}
	svc := NewTokenService(NewInMemoryTokenCacheStore(), creator, f.machine, "scope", time.Minute, discardLogger())
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, orderCheckout(order.ID), Identity{}, false); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := svc.GetOrCreate(ctx, orderCheckout(order.ID), Identity{}, false); err != nil {
		t.Fatalf("cached checkout: %v", err)
	}
	owner, err := f.repo.FindByTransactionToken(ctx, "tok-bound")
	if err != nil || owner.ID != order.ID {
		t.Fatalf("expected token bound to order %d, got %+v %v", order.ID, owner, err)
	}
}

func TestGetOrCreateRejectsUnknownOrder(t *testing.T) {
	f := newOrderFixture(t)
	creator := &stubTokenCreator{}
	store := NewInMemoryTokenCacheStore()
	svc := NewTokenService(store, creator, f.machine, "scope", time.Minute, discardLogger())
	ctx := context.Background()

	req := orderCheckout(999)
	_, err := svc.GetOrCreate(ctx, req, Identity{}, false)
	if !errors.Is(err, ErrInvalidCheckout) {
		t.Fatalf("expected invalid checkout, got %v", err)
	}
	req.Normalize()
	if _, ok, _ := store.Get(ctx, svc.CacheKey(req)); ok {
		t.Fatal("token for an unknown order must not stay cached")
	}
}

func TestGetOrCreateRefusesTokenOwnedByAnotherOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.seed(t, domain.OrderStatusPending, "5.00", "tok-reused")
	other := f.seed(t, domain.OrderStatusPending, "999.00", "")
	creator := &stubTokenCreator{fn: func(int32) (*bna.CheckoutToken, error) {
		return &bna.CheckoutToken{Token: "tok-reused"}, nil
	}}
	store := NewInMemoryTokenCacheStore()
	svc := NewTokenService(store, creator, f.machine, "scope", time.Minute, discardLogger())
	ctx := context.Background()

	req := orderCheckout(other.ID)
	if _, err := svc.GetOrCreate(ctx, req, Identity{}, false); !errors.Is(err, ErrTokenBoundElsewhere) {
		t.Fatalf("expected ownership conflict, got %v", err)
	}
	req.Normalize()
	if _, ok, _ := store.Get(ctx, svc.CacheKey(req)); ok {
		t.Fatal("misbound token must be dropped from the cache")
	}
	if got := f.reload(t, other.ID).Status; got != domain.OrderStatusPending {
		t.Fatalf("other order moved to %s", got)
	}
}
