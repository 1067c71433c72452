package bna

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutPayload is the body of POST /checkout. Exactly one of CustomerInfo
// and CustomerID is set.
type CheckoutPayload struct {
	IframeID     string        `json:"iframeId"`
	CustomerInfo *CustomerInfo `json:"customerInfo,omitempty"`
	CustomerID   string        `json:"customerId,omitempty"`
	Items        []Item        `json:"items"`
	Subtotal     json.Number   `json:"subtotal"`
	Currency     string        `json:"currency,omitempty"`
	InvoiceInfo  *InvoiceInfo  `json:"invoiceInfo,omitempty"`
}

type CustomerInfo struct {
	Type        string   `json:"type"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	PhoneCode   string   `json:"phoneCode,omitempty"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

type Address struct {
	StreetName string `json:"streetName,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

type Item struct {
	Description string      `json:"description"`
	SKU         string      `json:"sku,omitempty"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	Amount      json.Number `json:"amount"`
}

type InvoiceInfo struct {
	InvoiceID             string `json:"invoiceId"`
	InvoiceAdditionalInfo string `json:"invoiceAdditionalInfo,omitempty"`
}

// Number renders a decimal the way the payment api expects amounts.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type CheckoutToken struct {
	Token string
	// ReportedExpiry is zero when the api did not state one.
	ReportedExpiry time.Time
}

type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Type      string
}

type Transaction struct {
	ID               string          `json:"id"`
	TransactionToken string          `json:"transactionToken"`
	ReferenceNumber  string          `json:"referenceNumber"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Message          string          `json:"message"`
	CreatedAt        string          `json:"createdAt"`
}

type TransactionStatus struct {
	Status          string          `json:"status"`
	ReferenceNumber string          `json:"referenceNumber"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Message         string          `json:"message"`
}
