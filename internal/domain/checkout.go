package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidCheckout = errors.New("invalid checkout request")

type CustomerType string

const (
	CustomerTypePersonal CustomerType = "Personal"
	CustomerTypeBusiness CustomerType = "Business"
)

type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

type CustomerInfo struct {
	Type      CustomerType `json:"type"`
	Email     string       `json:"email"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Phone     string       `json:"phone,omitempty"`
	PhoneCode string       `json:"phone_code,omitempty"`
	Address   *Address     `json:"address,omitempty"`
}

// CustomerRef identifies the payer either inline or by a known remote id.
// Exactly one of Info and ID is set.
type CustomerRef struct {
	Info *CustomerInfo `json:"info,omitempty"`
	ID   string        `json:"id,omitempty"`
}

func (r CustomerRef) Inline() bool { return r.Info != nil }

// Key is the identity component of the token cache key.
func (r CustomerRef) Key() string {
	if r.Info != nil {
		return NormalizeEmail(r.Info.Email)
	}
	return "id:" + strings.TrimSpace(r.ID)
}

type LineItem struct {
	Description string          `json:"description"`
	SKU         string          `json:"sku,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

// LineAmount is Amount, or Price times Quantity when Amount was not given.
func (i LineItem) LineAmount() decimal.Decimal {
	if !i.Amount.IsZero() {
		return i.Amount
	}
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CheckoutRequest struct {
	IframeID  string          `json:"iframe_id"`
	Customer  CustomerRef     `json:"customer"`
	Items     []LineItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Currency  string          `json:"currency,omitempty"`
	OrderID   *uint           `json:"order_id,omitempty"`
	InvoiceID string          `json:"invoice_id,omitempty"`
}

// Normalize fills defaulted line amounts in place.
func (r *CheckoutRequest) Normalize() {
	for i := range r.Items {
		r.Items[i].Amount = r.Items[i].LineAmount()
		r.Items[i].Description = strings.TrimSpace(r.Items[i].Description)
	}
	r.IframeID = strings.TrimSpace(r.IframeID)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Customer.Info != nil {
		r.Customer.Info.Email = strings.TrimSpace(r.Customer.Info.Email)
		if r.Customer.Info.Type == "" {
			r.Customer.Info.Type = CustomerTypePersonal
		}
	}
}

func (r CheckoutRequest) Validate() error {
	var errs []string
	if strings.TrimSpace(r.IframeID) == "" {
		errs = append(errs, "iframe id is required")
	}
	switch {
	case r.Customer.Info != nil && strings.TrimSpace(r.Customer.ID) != "":
		errs = append(errs, "customer must be either inline info or an id, not both")
	case r.Customer.Info == nil && strings.TrimSpace(r.Customer.ID) == "":
		errs = append(errs, "customer info or customer id is required")
	case r.Customer.Info != nil:
		if NormalizeEmail(r.Customer.Info.Email) == "" {
			errs = append(errs, "customer email is required")
		}
		if t := r.Customer.Info.Type; t != "" && t != CustomerTypePersonal && t != CustomerTypeBusiness {
			errs = append(errs, fmt.Sprintf("unsupported customer type %q", t))
		}
	}
	if len(r.Items) == 0 {
		errs = append(errs, "at least one item is required")
	}
	sum := decimal.Zero
	for i, item := range r.Items {
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("item %d quantity must be positive", i))
		}
		if item.LineAmount().IsNegative() {
			errs = append(errs, fmt.Sprintf("item %d amount must not be negative", i))
		}
		sum = sum.Add(item.LineAmount())
	}
	if len(r.Items) > 0 && !sum.Equal(r.Subtotal) {
		errs = append(errs, fmt.Sprintf("subtotal %s does not equal item total %s", r.Subtotal.StringFixed(2), sum.StringFixed(2)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCheckout, strings.Join(errs, "; "))
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
