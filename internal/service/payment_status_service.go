package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

type PaymentStatus struct {
	Status          string             `json:"status"`
	LocalStatus     domain.OrderStatus `json:"local_status,omitempty"`
	ReferenceNumber string             `json:"reference_number,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Currency        string             `json:"currency,omitempty"`
	Message         string             `json:"message,omitempty"`
	OrderStatus     domain.OrderStatus `json:"order_status,omitempty"`
}

// PaymentStatusService answers storefront polls and, when enabled,
// reconciles the bound order with what the payment api reports.
type PaymentStatusService struct {
	api       PaymentAPI
	machine   OrderStateMachine
	reconcile bool
	logger    *slog.Logger
}

func NewPaymentStatusService(api PaymentAPI, machine OrderStateMachine, reconcile bool, logger *slog.Logger) *PaymentStatusService {
	return &PaymentStatusService{api: api, machine: machine, reconcile: reconcile, logger: logger}
}

func (s *PaymentStatusService) Status(ctx context.Context, token string) (PaymentStatus, error) {
	token = strings.TrimSpace(token)
	remote, err := s.api.GetTransactionStatus(ctx, token)
	if err != nil {
		return PaymentStatus{}, err
	}
	out := PaymentStatus{
		Status:          remote.Status,
		ReferenceNumber: remote.ReferenceNumber,
		Amount:          remote.Amount,
		Currency:        remote.Currency,
		Message:         remote.Message,
	}
	local, mapErr := MapRemoteStatus(remote.Status)
	if mapErr != nil {
		s.logger.WarnContext(ctx, "payment api returned unmapped status", "status", remote.Status)
		return out, nil
	}
	out.LocalStatus = local
	if !s.reconcile {
		return out, nil
	}

	var amount decimal.NullDecimal
	if remote.Amount.IsPositive() {
		amount = decimal.NewNullDecimal(remote.Amount)
	}
	res, err := s.machine.UpdateStatus(ctx, StatusUpdate{
		TransactionToken: token,
		RemoteStatus:     remote.Status,
		ReferenceNumber:  remote.ReferenceNumber,
		Amount:           amount,
		Currency:         remote.Currency,
		Source:           SourcePoll,
	})
	switch {
	case err == nil:
		out.OrderStatus = res.Order.Status
	case errors.Is(err, ErrOrderNotFound):
		// token not bound to an order yet
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAmountMismatch):
		out.OrderStatus = res.Order.Status
	default:
		s.logger.ErrorContext(ctx, "reconcile on poll failed", "error", err)
	}
	return out, nil
}
