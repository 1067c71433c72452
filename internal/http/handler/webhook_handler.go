package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/response"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

const SignatureHeader = "X-BNA-Signature"

type WebhookProcessor interface {
	Process(ctx context.Context, body []byte, signature string) (service.WebhookResult, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
	logger    *slog.Logger
}

func NewWebhookHandler(processor WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// Receive answers 200 or 400 only. Any 400 makes the processor retry.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WarnContext(r.Context(), "webhook body too large", "limit", tooLarge.Limit)
			response.Ack(w, http.StatusBadRequest, "payload too large", "")
			return
		}
		response.Ack(w, http.StatusBadRequest, "could not read payload", "")
		return
	}

	res, err := h.processor.Process(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		response.Ack(w, http.StatusBadRequest, webhookErrorMessage(err), res.EventID)
		return
	}
	response.Ack(w, http.StatusOK, res.Message, res.EventID)
}

func webhookErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrSignatureInvalid):
		return "invalid signature"
	case errors.Is(err, service.ErrStructureInvalid):
		return "invalid payload"
	case errors.Is(err, service.ErrUnknownEventType):
		return "unsupported event type"
	case errors.Is(err, service.ErrOrderNotFound):
		return "order not found"
	case errors.Is(err, service.ErrInvalidTransition):
		return "status change not allowed"
	case errors.Is(err, service.ErrAmountMismatch):
		return "paid amount does not match order total"
	case errors.Is(err, service.ErrRefundExceedsTotal):
		return "refund exceeds order total"
	case errors.Is(err, service.ErrEventReplayConflict):
		return "event id reused with a different payload"
	case errors.Is(err, service.ErrEventInProgress):
		return "event is being processed"
	default:
		return "webhook could not be processed"
	}
}
