package service

import (
	"context"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

// PaymentAPI is the subset of the remote payment api the services use.
// *bna.Client satisfies it.
type PaymentAPI interface {
	CreateCheckoutToken(ctx context.Context, payload bna.CheckoutPayload) (*bna.CheckoutToken, error)
	SearchCustomers(ctx context.Context, email string) ([]bna.Customer, error)
	ListCustomers(ctx context.Context) ([]bna.Customer, error)
	GetTransactionStatus(ctx context.Context, id string) (*bna.TransactionStatus, error)
	TestConnection(ctx context.Context) bool
}

var _ PaymentAPI = (*bna.Client)(nil)
