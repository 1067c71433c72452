package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

type payloadLog struct {
	mu       sync.Mutex
	payloads []bna.CheckoutPayload
}

func (l *payloadLog) add(p bna.CheckoutPayload) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payloads = append(l.payloads, p)
	return len(l.payloads)
}

func (l *payloadLog) all() []bna.CheckoutPayload {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bna.CheckoutPayload(nil), l.payloads...)
}

func newCheckoutServiceForTest(api PaymentAPI, ids CustomerIDStore) *CheckoutService {
	return NewCheckoutService(api, NewCustomerResolver(api, discardLogger()), ids, 0, discardLogger())
}

func TestCreateTokenResolvesConflictAndRetries(t *testing.T) {
	log := &payloadLog{}
	api := &stubPaymentAPI{
		createFn: func(_ context.Context, p bna.CheckoutPayload) (*bna.CheckoutToken, error) {
			if log.add(p) == 1 {
				return nil, conflictError()
			}
			return &bna.CheckoutToken{Token: "tok-retry"}, nil
		},
		searchFn: func(context.Context, string) ([]bna.Customer, error) {
			return []bna.Customer{{ID: "c-x", Email: "x@example.com"}, {ID: "c-ada", Email: "ada@example.com"}}, nil
		},
	}
	ids := NewInMemoryCustomerIDStore()
	svc := newCheckoutServiceForTest(api, ids)

	token, err := svc.CreateToken(context.Background(), inlineCheckout("Ada@Example.com"), Identity{})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if token.Token != "tok-retry" {
		t.Fatalf("unexpected token %q", token.Token)
	}

	payloads := log.all()
	if len(payloads) != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", len(payloads))
	}
	if payloads[0].CustomerInfo == nil || payloads[0].CustomerID != "" {
		t.Fatalf("first call must send inline customer only: %+v", payloads[0])
	}
	if payloads[1].CustomerInfo != nil || payloads[1].CustomerID != "c-ada" {
		t.Fatalf("retry must send customer id only: %+v", payloads[1])
	}

	stored, ok, err := ids.Get(context.Background(), Identity{}.CustomerKey("ada@example.com"))
	if err != nil || !ok || stored != "c-ada" {
		t.Fatalf("expected resolved id to be remembered, got %q ok=%v err=%v", stored, ok, err)
	}
}

func TestCreateTokenSecondConflictIsUnresolved(t *testing.T) {
	calls := 0
	api := &stubPaymentAPI{
		createFn: func(context.Context, bna.CheckoutPayload) (*bna.CheckoutToken, error) {
			calls++
			return nil, conflictError()
		},
		searchFn: func(context.Context, string) ([]bna.Customer, error) {
			return []bna.Customer{{ID: "c-ada", Email: "ada@example.com"}}, nil
		},
	}
	_, err := newCheckoutServiceForTest(api, NewInMemoryCustomerIDStore()).CreateToken(context.Background(), inlineCheckout("ada@example.com"), Identity{})
	if !IsCustomerConflict(err) {
		t.Fatalf("expected customer conflict, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two checkout attempts, got %d", calls)
	}
}

func TestCreateTokenUsesRememberedCustomerID(t *testing.T) {
	log := &payloadLog{}
	api := &stubPaymentAPI{
		createFn: func(_ context.Context, p bna.CheckoutPayload) (*bna.CheckoutToken, error) {
			log.add(p)
			return &bna.CheckoutToken{Token: "tok-known"}, nil
		},
	}
	ids := NewInMemoryCustomerIDStore()
	identity := Identity{UserID: "7", Email: "ada@example.com"}
	if err := ids.Set(context.Background(), identity.CustomerKey("ada@example.com"), "c-7", DefaultCustomerIDTTL); err != nil {
		t.Fatalf("seed id: %v", err)
	}

	if _, err := newCheckoutServiceForTest(api, ids).CreateToken(context.Background(), inlineCheckout("ada@example.com"), identity); err != nil {
		t.Fatalf("create token: %v", err)
	}
	payloads := log.all()
	if len(payloads) != 1 || payloads[0].CustomerID != "c-7" || payloads[0].CustomerInfo != nil {
		t.Fatalf("expected a single call with the remembered id, got %+v", payloads)
	}
}

func TestCreateTokenForgetsVanishedCustomerID(t *testing.T) {
	log := &payloadLog{}
	api := &stubPaymentAPI{
		createFn: func(_ context.Context, p bna.CheckoutPayload) (*bna.CheckoutToken, error) {
			log.add(p)
			if p.CustomerID != "" {
				return nil, &bna.Error{Kind: bna.KindRemoteAPI, StatusCode: 404, Message: "customer not found"}
			}
			return &bna.CheckoutToken{Token: "tok-inline"}, nil
		},
	}
	ids := NewInMemoryCustomerIDStore()
	key := Identity{}.CustomerKey("ada@example.com")
	_ = ids.Set(context.Background(), key, "c-gone", DefaultCustomerIDTTL)

	token, err := newCheckoutServiceForTest(api, ids).CreateToken(context.Background(), inlineCheckout("ada@example.com"), Identity{})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if token.Token != "tok-inline" || len(log.all()) != 2 {
		t.Fatalf("expected inline retry, token=%q calls=%d", token.Token, len(log.all()))
	}
	if _, ok, _ := ids.Get(context.Background(), key); ok {
		t.Fatal("expected vanished customer id to be forgotten")
	}
}

func TestCreateTokenWithCustomerIDSkipsResolution(t *testing.T) {
	log := &payloadLog{}
	api := &stubPaymentAPI{
		createFn: func(_ context.Context, p bna.CheckoutPayload) (*bna.CheckoutToken, error) {
			log.add(p)
			return nil, conflictError()
		},
	}
	req := inlineCheckout("ada@example.com")
	req.Customer = domain.CustomerRef{ID: "c-direct"}

	_, err := newCheckoutServiceForTest(api, NewInMemoryCustomerIDStore()).CreateToken(context.Background(), req, Identity{})
	if !bna.IsConflict(err) {
		t.Fatalf("expected the raw conflict to surface, got %v", err)
	}
	if len(log.all()) != 1 || log.all()[0].CustomerID != "c-direct" {
		t.Fatalf("expected one direct call, got %+v", log.all())
	}
}

func TestCreateTokenRejectsInvalidRequestLocally(t *testing.T) {
	api := &stubPaymentAPI{
		createFn: func(context.Context, bna.CheckoutPayload) (*bna.CheckoutToken, error) {
			t.Fatal("payment api must not be called")
			return nil, nil
		},
	}
	req := inlineCheckout("ada@example.com")
	req.Subtotal = req.Subtotal.Add(req.Subtotal)

	_, err := newCheckoutServiceForTest(api, NewInMemoryCustomerIDStore()).CreateToken(context.Background(), req, Identity{})
	if !errors.Is(err, ErrInvalidCheckout) {
		t.Fatalf("expected invalid checkout, got %v", err)
	}
}

func TestBuildCheckoutPayloadInvoiceFromOrder(t *testing.T) {
	req := inlineCheckout("ada@example.com")
	orderID := uint(42)
	req.OrderID = &orderID
	req.Normalize()

	payload := buildCheckoutPayload(req, "")
	if payload.InvoiceInfo == nil || payload.InvoiceInfo.InvoiceID != "42" {
		t.Fatalf("expected invoice id from order, got %+v", payload.InvoiceInfo)
	}
	if payload.Subtotal.String() != "20.00" || payload.Items[0].Amount.String() != "20.00" {
		t.Fatalf("unexpected amounts: subtotal=%s item=%s", payload.Subtotal, payload.Items[0].Amount)
	}
	if payload.CustomerInfo == nil || payload.CustomerInfo.Type != "Personal" {
		t.Fatalf("expected defaulted personal customer, got %+v", payload.CustomerInfo)
	}
}
