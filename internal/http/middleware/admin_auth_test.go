package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminAuth(t *testing.T) {
	mw := AdminAuth("admin-secret")
	cases := map[string]int{
		"":                    http.StatusUnauthorized,
		"Bearer wrong":        http.StatusUnauthorized,
		"Basic admin-secret":  http.StatusUnauthorized,
		"Bearer admin-secret": http.StatusOK,
		"bearer admin-secret": http.StatusOK,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("header %q: expected %d, got %d", header, want, rr.Code)
		}
	}
}

func TestAdminAuthWithoutSecretRefusesEverything(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	AdminAuth("")(okHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a configured secret, got %d", rr.Code)
	}
}

func TestWebhookRecovererAnswersWithAck(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("decoder exploded")
	})
	rr := httptest.NewRecorder()
	WebhookRecoverer(log)(boom).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/bna", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if body["status"] != "error" || body["message"] == "" {
		t.Fatalf("unexpected ack %+v", body)
	}
}
