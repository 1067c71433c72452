package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/security"
)

const DefaultTokenCacheTTL = 25 * time.Minute

type TokenCreator interface {
	CreateToken(ctx context.Context, req domain.CheckoutRequest, identity Identity) (*bna.CheckoutToken, error)
}

// OrderBinder records which order a freshly issued token pays for.
type OrderBinder interface {
	BindTransaction(ctx context.Context, orderID uint, token string, source StatusSource) (StatusResult, error)
}

type TokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	FromCache bool      `json:"from_cache"`
	CacheKey  string    `json:"cache_key"`
}

// TokenService caches checkout tokens per cart shape so page reloads reuse
// the token instead of opening a new remote session.
type TokenService struct {
	store   TokenCacheStore
	creator TokenCreator
	binder  OrderBinder
	scope   string
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

// NewTokenService keys every entry under scope so tokens created with one
// credential set are never served for another. A nil binder skips order
// binding.
func NewTokenService(store TokenCacheStore, creator TokenCreator, binder OrderBinder, scope string, ttl time.Duration, logger *slog.Logger) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenCacheTTL
	}
	return &TokenService{store: store, creator: creator, binder: binder, scope: scope, ttl: ttl, logger: logger, now: time.Now}
}

// CacheKey covers the iframe, the payer, the order, the subtotal and the item
// count. Two carts with equal subtotal and item count but different items
// share a key; the remote token does not embed line items.
func (s *TokenService) CacheKey(req domain.CheckoutRequest) string {
	parts := []string{
		s.scope,
		req.IframeID,
		req.Customer.Key(),
		req.Subtotal.StringFixed(2),
		strconv.Itoa(len(req.Items)),
	}
	if req.OrderID != nil {
		parts = append(parts, "order:"+strconv.FormatUint(uint64(*req.OrderID), 10))
	}
	return security.HashParts(parts...)
}

func (s *TokenService) GetOrCreate(ctx context.Context, req domain.CheckoutRequest, identity Identity, forceRefresh bool) (TokenResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return TokenResult{}, err
	}
	key := s.CacheKey(req)

	if !forceRefresh {
		if cached, ok := s.lookup(ctx, key); ok {
			return s.bind(ctx, req, TokenResult{Token: cached.Token, ExpiresAt: cached.ExpiresAt, FromCache: true, CacheKey: key})
		}
	}

	flightKey := key
	if forceRefresh {
		flightKey = key + "|refresh"
	}
	// the shared flight outlives any single caller; the api client timeout bounds it
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(flightKey, func() (any, error) {
		if !forceRefresh {
			if cached, ok := s.lookup(flightCtx, key); ok {
				return TokenResult{Token: cached.Token, ExpiresAt: cached.ExpiresAt, FromCache: true, CacheKey: key}, nil
			}
		}
		return s.create(flightCtx, req, identity, key)
	})
	if err != nil {
		return TokenResult{}, err
	}
	return s.bind(ctx, req, v.(TokenResult))
}

// bind ties the token to the order named in the checkout request. Only the
// server does this; browser messages never choose the order.
func (s *TokenService) bind(ctx context.Context, req domain.CheckoutRequest, res TokenResult) (TokenResult, error) {
	if s.binder == nil || req.OrderID == nil {
		return res, nil
	}
	_, err := s.binder.BindTransaction(ctx, *req.OrderID, res.Token, SourceCheckout)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrTokenBoundElsewhere) {
		if derr := s.store.Delete(ctx, res.CacheKey); derr != nil {
			s.logger.WarnContext(ctx, "drop unbound token failed", "error", derr)
		}
	}
	if errors.Is(err, ErrOrderNotFound) {
		return TokenResult{}, fmt.Errorf("%w: order %d does not exist", ErrInvalidCheckout, *req.OrderID)
	}
	return TokenResult{}, fmt.Errorf("bind checkout token: %w", err)
}

func (s *TokenService) lookup(ctx context.Context, key string) (CachedToken, bool) {
	cached, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "token cache read failed", "error", err)
		return CachedToken{}, false
	}
	if !ok || !cached.Valid(s.now().UTC()) {
		return CachedToken{}, false
	}
	return cached, true
}

func (s *TokenService) create(ctx context.Context, req domain.CheckoutRequest, identity Identity, key string) (TokenResult, error) {
	token, err := s.creator.CreateToken(ctx, req, identity)
	if err != nil {
		return TokenResult{}, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	if !token.ReportedExpiry.IsZero() && token.ReportedExpiry.Before(expiresAt) {
		expiresAt = token.ReportedExpiry
	}
	entry := CachedToken{Token: token.Token, CacheKey: key, CreatedAt: now, ExpiresAt: expiresAt}
	if err := s.store.Set(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "token cache write failed", "error", err)
	}
	s.logger.InfoContext(ctx, "checkout token created", "cache_key", key, "expires_at", expiresAt)
	return TokenResult{Token: token.Token, ExpiresAt: expiresAt, CacheKey: key}, nil
}

func (s *TokenService) Invalidate(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

func (s *TokenService) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}
