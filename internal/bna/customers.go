package bna

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type customerShape int

const (
	shapeEnvelope customerShape = iota + 1
	shapeArray
	shapeSingle
	shapeEmpty
)

// customerSearchResult is the decoded customer endpoint answer. The api
// returns one of three shapes and only one field below is populated.
type customerSearchResult struct {
	shape    customerShape
	envelope []wireCustomer
	array    []wireCustomer
	single   *wireCustomer
}

type wireCustomer struct {
	ID         json.RawMessage `json:"id"`
	CustomerID json.RawMessage `json:"customerId"`
	Email      string          `json:"email"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	Type       string          `json:"type"`
}

func (w wireCustomer) toCustomer() Customer {
	id := rawID(w.ID)
	if id == "" {
		id = rawID(w.CustomerID)
	}
	return Customer{ID: id, Email: w.Email, FirstName: w.FirstName, LastName: w.LastName, Type: w.Type}
}

// rawID accepts both string and numeric identifiers.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func decodeCustomerSearch(raw []byte) (customerSearchResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return customerSearchResult{shape: shapeEmpty}, nil
	}
	if !json.Valid(trimmed) {
		return customerSearchResult{}, newMalformedError(http.StatusOK, raw, fmt.Errorf("invalid json"))
	}
	switch trimmed[0] {
	case '[':
		var arr []wireCustomer
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return customerSearchResult{}, newMalformedError(http.StatusOK, raw, err)
		}
		return customerSearchResult{shape: shapeArray, array: arr}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return customerSearchResult{}, newMalformedError(http.StatusOK, raw, err)
		}
		if data, ok := fields["data"]; ok {
			var arr []wireCustomer
			if err := json.Unmarshal(data, &arr); err != nil {
				// data may itself hold a single customer
				var one wireCustomer
				if err2 := json.Unmarshal(data, &one); err2 != nil {
					return customerSearchResult{}, newMalformedError(http.StatusOK, raw, err)
				}
				arr = []wireCustomer{one}
			}
			return customerSearchResult{shape: shapeEnvelope, envelope: arr}, nil
		}
		var one wireCustomer
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return customerSearchResult{}, newMalformedError(http.StatusOK, raw, err)
		}
		return customerSearchResult{shape: shapeSingle, single: &one}, nil
	default:
		return customerSearchResult{}, newMalformedError(http.StatusOK, raw, fmt.Errorf("unexpected customer payload"))
	}
}

func (r customerSearchResult) customers() []Customer {
	var src []wireCustomer
	switch r.shape {
	case shapeEnvelope:
		src = r.envelope
	case shapeArray:
		src = r.array
	case shapeSingle:
		if r.single != nil {
			src = []wireCustomer{*r.single}
		}
	}
	out := make([]Customer, 0, len(src))
	for _, w := range src {
		c := w.toCustomer()
		if c.ID == "" && c.Email == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func normalizeCustomers(raw []byte) ([]Customer, error) {
	res, err := decodeCustomerSearch(raw)
	if err != nil {
		return nil, err
	}
	return res.customers(), nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail returns the first customer whose email equals target after
// trimming and case folding.
func FindByEmail(customers []Customer, target string) (Customer, bool) {
	want := NormalizeEmail(target)
	if want == "" {
		return Customer{}, false
	}
	for _, c := range customers {
		if c.ID != "" && NormalizeEmail(c.Email) == want {
			return c, true
		}
	}
	return Customer{}, false
}
