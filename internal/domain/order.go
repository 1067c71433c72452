package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Paid reports whether the order already holds a successful payment.
func (s OrderStatus) Paid() bool {
	return s == OrderStatusProcessing || s == OrderStatusCompleted
}

// Order is the storefront order the payment session belongs to. Only the
// status state machine mutates Status, Chargeback and Version.
type Order struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Number     string          `gorm:"size:64;uniqueIndex;not null" json:"number"`
	Status     OrderStatus     `gorm:"size:32;not null;default:pending;index" json:"status"`
	Total      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	Currency   string          `gorm:"size:3;not null;default:CAD" json:"currency"`
	Chargeback bool            `gorm:"not null;default:false" json:"chargeback"`
	Version    int             `gorm:"not null;default:1" json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Transaction is one remote payment attempt bound to an order. The most
// recently created row is authoritative for the order.
type Transaction struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	TransactionToken string          `gorm:"size:255;not null;index" json:"transaction_token"`
	ReferenceNumber  string          `gorm:"size:128" json:"reference_number,omitempty"`
	Status           string          `gorm:"size:64" json:"status"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	Currency         string          `gorm:"size:3" json:"currency,omitempty"`
	RawPayload       []byte          `json:"-"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type NoteKind string

const (
	NoteKindStatus        NoteKind = "status"
	NoteKindPartialRefund NoteKind = "partial_refund"
	NoteKindChargeback    NoteKind = "chargeback"
	NoteKindRejected      NoteKind = "rejected"
)

type OrderNote struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderID         uint            `gorm:"not null;index" json:"order_id"`
	Kind            NoteKind        `gorm:"size:32;not null" json:"kind"`
	Message         string          `gorm:"size:1024;not null" json:"message"`
	ReferenceNumber string          `gorm:"size:128" json:"reference_number,omitempty"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

type OrderStatusTransition struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	OrderID      uint        `gorm:"not null;index" json:"order_id"`
	FromStatus   OrderStatus `gorm:"size:32;not null" json:"from_status"`
	ToStatus     OrderStatus `gorm:"size:32;not null" json:"to_status"`
	RemoteStatus string      `gorm:"size:64" json:"remote_status"`
	Source       string      `gorm:"size:32;not null" json:"source"`
	EventID      string      `gorm:"size:128;index" json:"event_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
