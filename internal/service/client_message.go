package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type ClientMessageType string

const (
	ClientPaymentSuccess ClientMessageType = "payment_success"
	ClientPaymentFailed  ClientMessageType = "payment_failed"
	ClientPaymentError   ClientMessageType = "payment_error"
)

// ClientMessage is a postMessage event the hosted iframe sent to the
// storefront page, relayed here by the page script. Origin is the relaying
// request's Origin header, never a body field.
type ClientMessage struct {
	Type             ClientMessageType `json:"type"`
	Origin           string            `json:"-"`
	TransactionToken string            `json:"transaction_token"`
	Message          string            `json:"message"`
}

type ClientOutcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ClientMessageService turns iframe messages into UI outcomes. Browser
// messages are untrusted and never touch order state: tokens are bound to
// orders when checkout issues them, and only signed webhooks or polls move
// order status.
type ClientMessageService struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

func NewClientMessageService(allowedOrigins []string, logger *slog.Logger) *ClientMessageService {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &ClientMessageService{allowed: allowed, logger: logger}
}

func (s *ClientMessageService) OriginAllowed(origin string) bool {
	_, ok := s.allowed[normalizeOrigin(origin)]
	return ok
}

func (s *ClientMessageService) Handle(ctx context.Context, msg ClientMessage) (ClientOutcome, error) {
	if !s.OriginAllowed(msg.Origin) {
		s.logger.WarnContext(ctx, "client message from disallowed origin", "origin", msg.Origin, "type", msg.Type)
		return ClientOutcome{}, fmt.Errorf("%w: %q", ErrOriginNotAllowed, msg.Origin)
	}

	switch msg.Type {
	case ClientPaymentSuccess:
		s.logger.InfoContext(ctx, "client reported payment success", "has_token", strings.TrimSpace(msg.TransactionToken) != "")
		return ClientOutcome{Status: "success", Message: "Payment received. Your order is being confirmed."}, nil
	case ClientPaymentFailed:
		return ClientOutcome{Status: "failed", Message: clientText(msg.Message, "Payment was declined. Please try another payment method.")}, nil
	case ClientPaymentError:
		return ClientOutcome{Status: "error", Message: clientText(msg.Message, "Payment could not be processed. Please try again.")}, nil
	default:
		return ClientOutcome{}, fmt.Errorf("%w: %q", ErrUnknownClientMessage, msg.Type)
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func clientText(provided, fallback string) string {
	provided = strings.TrimSpace(provided)
	if provided == "" || len(provided) > 200 {
		return fallback
	}
	return provided
}
