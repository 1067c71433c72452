package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/repository"
)

type StatusSource string

const (
	SourceWebhook  StatusSource = "webhook"
	SourcePoll     StatusSource = "poll"
	SourceCheckout StatusSource = "checkout"
)

var remoteStatusTable = map[string]domain.OrderStatus{
	"completed": domain.OrderStatusProcessing,
	"approved":  domain.OrderStatusProcessing,
	"success":   domain.OrderStatusProcessing,
	"declined":  domain.OrderStatusFailed,
	"failed":    domain.OrderStatusFailed,
	"cancelled": domain.OrderStatusCancelled,
	"refunded":  domain.OrderStatusRefunded,
	"pending":   domain.OrderStatusPending,
}

var allowedTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusFailed, domain.OrderStatusCancelled},
	domain.OrderStatusFailed:     {domain.OrderStatusProcessing},
	domain.OrderStatusProcessing: {domain.OrderStatusRefunded},
	domain.OrderStatusCompleted:  {domain.OrderStatusRefunded},
}

// MapRemoteStatus translates a remote transaction status into a local order
// status. The lookup is case-insensitive.
func MapRemoteStatus(remote string) (domain.OrderStatus, error) {
	if status, ok := remoteStatusTable[strings.ToLower(strings.TrimSpace(remote))]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, remote)
}

// CheckTransition reports whether moving from -> to is a no-op, allowed, or
// rejected with a *TransitionError.
func CheckTransition(from, to domain.OrderStatus) (noop bool, err error) {
	switch {
	case from == to:
		return true, nil
	case to == domain.OrderStatusProcessing && from.Paid():
		return true, nil
	case to == domain.OrderStatusPending:
		// a late pending never moves an order backwards
		return true, nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return false, nil
		}
	}
	return false, &TransitionError{From: from, To: to}
}

// OrderEffects receives side effects that must run once per real transition.
type OrderEffects interface {
	PaymentComplete(ctx context.Context, order domain.Order, referenceNumber string)
}

type LoggingOrderEffects struct {
	logger *slog.Logger
}

func NewLoggingOrderEffects(logger *slog.Logger) *LoggingOrderEffects {
	return &LoggingOrderEffects{logger: logger}
}

func (e *LoggingOrderEffects) PaymentComplete(ctx context.Context, order domain.Order, referenceNumber string) {
	e.logger.InfoContext(ctx, "payment complete", "order_id", order.ID, "order_number", order.Number, "reference_number", referenceNumber)
}

type StatusUpdate struct {
	OrderID          *uint
	TransactionToken string
	RemoteStatus     string
	ReferenceNumber  string
	Amount           decimal.NullDecimal
	Currency         string
	RawPayload       []byte
	Source           StatusSource
	EventID          string
}

type RefundUpdate struct {
	OrderID          *uint
	TransactionToken string
	RefundAmount     decimal.NullDecimal
	Amount           decimal.NullDecimal
	ReferenceNumber  string
	RawPayload       []byte
	Source           StatusSource
	EventID          string
}

type ChargebackUpdate struct {
	OrderID          *uint
	TransactionToken string
	Amount           decimal.NullDecimal
	ReferenceNumber  string
	Reason           string
	Source           StatusSource
	EventID          string
}

type StatusResult struct {
	Order    domain.Order
	Previous domain.OrderStatus
	Applied  bool
	Message  string
}

// OrderStateMachine is the only writer of order payment state.
type OrderStateMachine interface {
	UpdateStatus(ctx context.Context, u StatusUpdate) (StatusResult, error)
	AnnotateRefund(ctx context.Context, u RefundUpdate) (StatusResult, error)
	AnnotateChargeback(ctx context.Context, u ChargebackUpdate) (StatusResult, error)
	RecordRejection(ctx context.Context, orderID *uint, token, message string) error
	BindTransaction(ctx context.Context, orderID uint, token string, source StatusSource) (StatusResult, error)
}

type OrderStatusService struct {
	orders  repository.OrderRepository
	effects OrderEffects
	locks   *keyedMutex
	// bindMu serializes token ownership checks across orders.
	bindMu sync.Mutex
	logger *slog.Logger
}

func NewOrderStatusService(orders repository.OrderRepository, effects OrderEffects, logger *slog.Logger) *OrderStatusService {
	return &OrderStatusService{orders: orders, effects: effects, locks: newKeyedMutex(), logger: logger}
}

var _ OrderStateMachine = (*OrderStatusService)(nil)

func (s *OrderStatusService) lookup(ctx context.Context, orderID *uint, token string) (*domain.Order, error) {
	if strings.TrimSpace(token) != "" {
		order, err := s.orders.FindByTransactionToken(ctx, token)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("find order by transaction token: %w", err)
		}
	}
	if orderID != nil {
		return s.orders.FindByID(ctx, *orderID)
	}
	return nil, ErrOrderNotFound
}

// mutate runs fn for the order under the per-order lock. A non-nil reject
// error set by fn is returned after its audit rows were committed.
func (s *OrderStatusService) mutate(ctx context.Context, orderID *uint, token string, fn func(cur domain.Order, reject *error) (repository.OrderChange, string)) (StatusResult, error) {
	order, err := s.lookup(ctx, orderID, token)
	if err != nil {
		return StatusResult{}, err
	}
	unlock := s.locks.Lock(order.ID)
	defer unlock()

	var (
		rejectErr error
		previous  domain.OrderStatus
		applied   bool
		message   string
	)
	updated, err := s.orders.Mutate(ctx, order.ID, func(cur domain.Order) (repository.OrderChange, error) {
		rejectErr, applied = nil, false
		previous = cur.Status
		change, msg := fn(cur, &rejectErr)
		message = msg
		applied = rejectErr == nil && !change.Empty()
		return change, nil
	})
	if err != nil {
		return StatusResult{}, err
	}
	res := StatusResult{Order: updated, Previous: previous, Applied: applied, Message: message}
	if rejectErr != nil {
		return res, rejectErr
	}
	return res, nil
}

func (s *OrderStatusService) UpdateStatus(ctx context.Context, u StatusUpdate) (StatusResult, error) {
	target, err := MapRemoteStatus(u.RemoteStatus)
	if err != nil {
		return StatusResult{}, err
	}
	res, err := s.mutate(ctx, u.OrderID, u.TransactionToken, func(cur domain.Order, reject *error) (repository.OrderChange, string) {
		noop, terr := CheckTransition(cur.Status, target)
		if terr != nil {
			*reject = terr
			msg := fmt.Sprintf("rejected %s update (%s): %s", u.Source, u.RemoteStatus, terr.Error())
			return repository.OrderChange{Notes: []domain.OrderNote{rejectionNote(msg, u.ReferenceNumber)}}, msg
		}
		if noop {
			return repository.OrderChange{}, fmt.Sprintf("order already %s", cur.Status)
		}
		if target == domain.OrderStatusProcessing && u.Amount.Valid && u.Amount.Decimal.LessThan(cur.Total) {
			*reject = fmt.Errorf("%w: paid %s, order total %s", ErrAmountMismatch, u.Amount.Decimal.StringFixed(2), cur.Total.StringFixed(2))
			msg := fmt.Sprintf("rejected %s update (%s): %s", u.Source, u.RemoteStatus, (*reject).Error())
			return repository.OrderChange{Notes: []domain.OrderNote{rejectionNote(msg, u.ReferenceNumber)}}, msg
		}
		msg := fmt.Sprintf("payment %s via %s: %s -> %s", strings.ToLower(u.RemoteStatus), u.Source, cur.Status, target)
		amount := u.Amount.Decimal
		if !u.Amount.Valid {
			amount = cur.Total
		}
		return repository.OrderChange{
			Status: &target,
			Transaction: &domain.Transaction{
				TransactionToken: strings.TrimSpace(u.TransactionToken),
				ReferenceNumber:  u.ReferenceNumber,
				Status:           strings.ToLower(u.RemoteStatus),
				Amount:           amount,
				Currency:         firstNonEmpty(u.Currency, cur.Currency),
				RawPayload:       u.RawPayload,
			},
			Notes: []domain.OrderNote{{
				Kind:            domain.NoteKindStatus,
				Message:         msg,
				ReferenceNumber: u.ReferenceNumber,
				Amount:          amount,
			}},
			Transition: &domain.OrderStatusTransition{
				FromStatus:   cur.Status,
				ToStatus:     target,
				RemoteStatus: u.RemoteStatus,
				Source:       string(u.Source),
				EventID:      u.EventID,
			},
		}, msg
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAmountMismatch) {
			s.logger.WarnContext(ctx, "order status update rejected", "order_id", res.Order.ID, "remote_status", u.RemoteStatus, "source", u.Source, "error", err)
		}
		return res, err
	}
	if res.Applied {
		s.logger.InfoContext(ctx, "order status updated", "order_id", res.Order.ID, "from", res.Previous, "to", res.Order.Status, "source", u.Source, "event_id", u.EventID)
		if res.Order.Status == domain.OrderStatusProcessing {
			s.effects.PaymentComplete(ctx, res.Order, u.ReferenceNumber)
		}
	}
	return res, nil
}

// AnnotateRefund applies a refund notification. A refund of the full total
// moves the order to refunded; a smaller one only adds a note.
func (s *OrderStatusService) AnnotateRefund(ctx context.Context, u RefundUpdate) (StatusResult, error) {
	res, err := s.mutate(ctx, u.OrderID, u.TransactionToken, func(cur domain.Order, reject *error) (repository.OrderChange, string) {
		amount := cur.Total
		switch {
		case u.RefundAmount.Valid:
			amount = u.RefundAmount.Decimal
		case u.Amount.Valid:
			amount = u.Amount.Decimal
		}
		if amount.IsNegative() || amount.GreaterThan(cur.Total) {
			*reject = fmt.Errorf("%w: %s > %s", ErrRefundExceedsTotal, amount.StringFixed(2), cur.Total.StringFixed(2))
			msg := fmt.Sprintf("rejected refund of %s: exceeds order total %s", amount.StringFixed(2), cur.Total.StringFixed(2))
			return repository.OrderChange{Notes: []domain.OrderNote{rejectionNote(msg, u.ReferenceNumber)}}, msg
		}

		if amount.LessThan(cur.Total) {
			msg := fmt.Sprintf("partial refund of %s %s", amount.StringFixed(2), cur.Currency)
			return repository.OrderChange{Notes: []domain.OrderNote{{
				Kind:            domain.NoteKindPartialRefund,
				Message:         msg,
				ReferenceNumber: u.ReferenceNumber,
				Amount:          amount,
			}}}, msg
		}

		target := domain.OrderStatusRefunded
		noop, terr := CheckTransition(cur.Status, target)
		if terr != nil {
			*reject = terr
			msg := fmt.Sprintf("rejected refund: %s", terr.Error())
			return repository.OrderChange{Notes: []domain.OrderNote{rejectionNote(msg, u.ReferenceNumber)}}, msg
		}
		if noop {
			return repository.OrderChange{}, "order already refunded"
		}
		msg := fmt.Sprintf("refunded %s %s", amount.StringFixed(2), cur.Currency)
		return repository.OrderChange{
			Status: &target,
			Transaction: &domain.Transaction{
				TransactionToken: strings.TrimSpace(u.TransactionToken),
				ReferenceNumber:  u.ReferenceNumber,
				Status:           "refunded",
				Amount:           amount,
				Currency:         cur.Currency,
				RawPayload:       u.RawPayload,
			},
			Notes: []domain.OrderNote{{Kind: domain.NoteKindStatus, Message: msg, ReferenceNumber: u.ReferenceNumber, Amount: amount}},
			Transition: &domain.OrderStatusTransition{
				FromStatus:   cur.Status,
				ToStatus:     target,
				RemoteStatus: "refunded",
				Source:       string(u.Source),
				EventID:      u.EventID,
			},
		}, msg
	})
	if err == nil && res.Applied {
		s.logger.InfoContext(ctx, "refund recorded", "order_id", res.Order.ID, "status", res.Order.Status, "event_id", u.EventID)
	}
	return res, err
}

// AnnotateChargeback flags the order once. The payment status is untouched.
func (s *OrderStatusService) AnnotateChargeback(ctx context.Context, u ChargebackUpdate) (StatusResult, error) {
	res, err := s.mutate(ctx, u.OrderID, u.TransactionToken, func(cur domain.Order, _ *error) (repository.OrderChange, string) {
		if cur.Chargeback {
			return repository.OrderChange{}, "chargeback already recorded"
		}
		flag := true
		msg := "chargeback received"
		if u.Reason != "" {
			msg += ": " + u.Reason
		}
		return repository.OrderChange{
			Chargeback: &flag,
			Notes: []domain.OrderNote{{
				Kind:            domain.NoteKindChargeback,
				Message:         msg,
				ReferenceNumber: u.ReferenceNumber,
				Amount:          u.Amount.Decimal,
			}},
		}, msg
	})
	if err == nil && res.Applied {
		s.logger.WarnContext(ctx, "chargeback recorded", "order_id", res.Order.ID, "event_id", u.EventID)
	}
	return res, err
}

// RecordRejection leaves an audit note for an event that could not be
// applied. Unknown orders are ignored.
func (s *OrderStatusService) RecordRejection(ctx context.Context, orderID *uint, token, message string) error {
	_, err := s.mutate(ctx, orderID, token, func(domain.Order, *error) (repository.OrderChange, string) {
		return repository.OrderChange{Notes: []domain.OrderNote{rejectionNote(message, "")}}, message
	})
	if errors.Is(err, ErrOrderNotFound) {
		return nil
	}
	return err
}

// BindTransaction links a transaction token to an order without changing
// its status, so later webhooks carrying only the token find the order. A
// token owned by a different order is never moved.
func (s *OrderStatusService) BindTransaction(ctx context.Context, orderID uint, token string, source StatusSource) (StatusResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return StatusResult{}, fmt.Errorf("%w: transaction token is required", ErrStructureInvalid)
	}
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	unlock := s.locks.Lock(orderID)
	defer unlock()

	bound := false
	owner, err := s.orders.FindByTransactionToken(ctx, token)
	switch {
	case err == nil && owner.ID != orderID:
		s.logger.WarnContext(ctx, "transaction token rebind refused", "order_id", orderID, "owner_order_id", owner.ID, "source", source)
		return StatusResult{}, fmt.Errorf("%w: order %d", ErrTokenBoundElsewhere, owner.ID)
	case err == nil:
		bound = true
	case !errors.Is(err, repository.ErrOrderNotFound):
		return StatusResult{}, err
	}

	updated, err := s.orders.Mutate(ctx, orderID, func(cur domain.Order) (repository.OrderChange, error) {
		if bound {
			return repository.OrderChange{}, nil
		}
		return repository.OrderChange{Transaction: &domain.Transaction{
			TransactionToken: token,
			Status:           "bound",
			Amount:           cur.Total,
			Currency:         cur.Currency,
		}}, nil
	})
	if err != nil {
		return StatusResult{}, err
	}
	if !bound {
		s.logger.InfoContext(ctx, "transaction bound to order", "order_id", orderID, "source", source)
	}
	return StatusResult{Order: updated, Previous: updated.Status, Applied: !bound}, nil
}

func rejectionNote(message, reference string) domain.OrderNote {
	return domain.OrderNote{Kind: domain.NoteKindRejected, Message: message, ReferenceNumber: reference}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
