package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

func newBNAClientForTest(t *testing.T, h http.HandlerFunc) *bna.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	resolver := bna.NewResolver(bna.Credentials{AccessKey: "ak", SecretKey: "sk", Environment: bna.EnvironmentStaging}, srv.URL)
	return bna.NewClient(resolver, bna.ClientOptions{Timeout: 2 * time.Second, PingTimeout: time.Second})
}

func TestResolvePicksExactEmailFromEnvelope(t *testing.T) {
	client := newBNAClientForTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers" || r.URL.Query().Get("email") == "" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"c-other","email":"someone@example.com"},
			{"id":4521,"email":"Ada@Example.com "},
			{"customerId":"c-3","email":"ada@example.org"}
		]}`))
	})

	id, err := NewCustomerResolver(client, discardLogger()).Resolve(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "4521" {
		t.Fatalf("expected exact match id 4521, got %q", id)
	}
}

func TestResolveFallsBackToListing(t *testing.T) {
	listed := false
	api := &stubPaymentAPI{
		searchFn: func(context.Context, string) ([]bna.Customer, error) {
			return []bna.Customer{{ID: "c-1", Email: "other@example.com"}}, nil
		},
		listFn: func(context.Context) ([]bna.Customer, error) {
			listed = true
			return []bna.Customer{{ID: "c-1", Email: "other@example.com"}, {ID: "c-2", Email: "ada@example.com"}}, nil
		},
	}
	id, err := NewCustomerResolver(api, discardLogger()).Resolve(context.Background(), "ADA@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !listed || id != "c-2" {
		t.Fatalf("expected list fallback to find c-2, listed=%v id=%q", listed, id)
	}
}

func TestResolveReportsUnresolvedConflict(t *testing.T) {
	searchErr := errors.New("search down")
	tests := []struct {
		name string
		api  *stubPaymentAPI
	}{
		{
			name: "no match anywhere",
			api: &stubPaymentAPI{
				searchFn: func(context.Context, string) ([]bna.Customer, error) { return nil, nil },
				listFn:   func(context.Context) ([]bna.Customer, error) { return nil, nil },
			},
		},
		{
			name: "search and list fail",
			api: &stubPaymentAPI{
				searchFn: func(context.Context, string) ([]bna.Customer, error) { return nil, searchErr },
				listFn:   func(context.Context) ([]bna.Customer, error) { return nil, errors.New("list down") },
			},
		},
		{
			name: "directory panics",
			api: &stubPaymentAPI{
				searchFn: func(context.Context, string) ([]bna.Customer, error) { panic("bad payload") },
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCustomerResolver(tc.api, discardLogger()).Resolve(context.Background(), "ada@example.com")
			if !errors.Is(err, ErrCustomerConflictUnresolved) {
				t.Fatalf("expected unresolved conflict, got %v", err)
			}
			var conflict *ConflictUnresolvedError
			if !errors.As(err, &conflict) || conflict.Email != "ada@example.com" {
				t.Fatalf("expected *ConflictUnresolvedError carrying the email, got %#v", err)
			}
		})
	}
}

func TestResolveRejectsEmptyEmail(t *testing.T) {
	_, err := NewCustomerResolver(&stubPaymentAPI{}, discardLogger()).Resolve(context.Background(), "  ")
	if !errors.Is(err, ErrCustomerConflictUnresolved) {
		t.Fatalf("expected unresolved conflict, got %v", err)
	}
}
