package service

import (
	"errors"
	"fmt"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/repository"
)

var (
	ErrCustomerConflictUnresolved = errors.New("customer conflict unresolved")
	ErrSignatureInvalid           = errors.New("webhook signature invalid")
	ErrStructureInvalid           = errors.New("webhook payload invalid")
	ErrUnknownEventType           = errors.New("unknown webhook event type")
	ErrUnknownStatus              = errors.New("unknown remote transaction status")
	ErrInvalidTransition          = errors.New("order status transition not allowed")
	ErrRefundExceedsTotal         = errors.New("refund amount exceeds order total")
	ErrEventReplayConflict        = errors.New("event id reused with a different payload")
	ErrEventInProgress            = errors.New("event is already being processed")
	ErrOriginNotAllowed           = errors.New("message origin not allowed")
	ErrUnknownClientMessage       = errors.New("unknown client message type")
	ErrTokenBoundElsewhere        = errors.New("transaction token already belongs to another order")
	ErrAmountMismatch             = errors.New("paid amount does not cover order total")

	ErrOrderNotFound   = repository.ErrOrderNotFound
	ErrInvalidCheckout = domain.ErrInvalidCheckout
)

// CustomerConflictMessage is shown to the shopper when the payment provider
// already knows the email and the existing customer could not be found.
const CustomerConflictMessage = "this email is already registered with the payment provider; use a different email or contact support"

type ConflictUnresolvedError struct {
	Email string
	Cause error
}

func (e *ConflictUnresolvedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("customer conflict for %s unresolved", e.Email)
	}
	return fmt.Sprintf("customer conflict for %s unresolved: %v", e.Email, e.Cause)
}

func (e *ConflictUnresolvedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCustomerConflictUnresolved}
	}
	return []error{ErrCustomerConflictUnresolved, e.Cause}
}

// TransitionError records a rejected status change.
type TransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order status transition %s -> %s not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
