package bna

import (
	"errors"
	"testing"
)

func TestNormalizeCustomersShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{name: "envelope", body: `{"data":[{"id":"c-1","email":"a@b.com"},{"id":"c-2","email":"x@y.com"}]}`, wantIDs: []string{"c-1", "c-2"}},
		{name: "envelopeSingle", body: `{"data":{"customerId":"c-9","email":"a@b.com"}}`, wantIDs: []string{"c-9"}},
		{name: "array", body: `[{"id":42,"email":"a@b.com"}]`, wantIDs: []string{"42"}},
		{name: "single", body: `{"id":"c-3","email":"a@b.com"}`, wantIDs: []string{"c-3"}},
		{name: "empty", body: ``, wantIDs: nil},
		{name: "emptyArray", body: `[]`, wantIDs: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeCustomers([]byte(tc.body))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("expected %d customers, got %+v", len(tc.wantIDs), got)
			}
			for i, id := range tc.wantIDs {
				if got[i].ID != id {
					t.Fatalf("customer %d: expected id %q got %q", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestNormalizeCustomersRejectsGarbage(t *testing.T) {
	for _, body := range []string{`{"data":`, `"just a string"`, `{"data":"nope"}`} {
		if _, err := normalizeCustomers([]byte(body)); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("body %q: expected malformed error, got %v", body, err)
		}
	}
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	customers := []Customer{
		{ID: "", Email: "a@b.com"},
		{ID: "c-2", Email: "Other@b.com"},
		{ID: "c-3", Email: " A@B.COM "},
	}
	got, ok := FindByEmail(customers, "a@b.com")
	if !ok || got.ID != "c-3" {
		t.Fatalf("expected c-3, got %+v ok=%v", got, ok)
	}
	if _, ok := FindByEmail(customers, "missing@b.com"); ok {
		t.Fatal("expected no match")
	}
	if _, ok := FindByEmail(customers, "  "); ok {
		t.Fatal("blank target must not match")
	}
}
