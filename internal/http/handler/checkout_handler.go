package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/middleware"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/response"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

type CheckoutTokens interface {
	GetOrCreate(ctx context.Context, req domain.CheckoutRequest, identity service.Identity, forceRefresh bool) (service.TokenResult, error)
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

type PaymentStatusReader interface {
	Status(ctx context.Context, token string) (service.PaymentStatus, error)
}

type ClientMessageHandler interface {
	Handle(ctx context.Context, msg service.ClientMessage) (service.ClientOutcome, error)
}

type ConnectionTester interface {
	Test(ctx context.Context, override *bna.Credentials) bool
}

type CheckoutHandler struct {
	tokens          CheckoutTokens
	status          PaymentStatusReader
	clientMessages  ClientMessageHandler
	connection      ConnectionTester
	iframeURL       func(token string) string
	defaultIframeID string
	logger          *slog.Logger
}

func NewCheckoutHandler(
	tokens CheckoutTokens,
	status PaymentStatusReader,
	clientMessages ClientMessageHandler,
	connection ConnectionTester,
	iframeURL func(token string) string,
	defaultIframeID string,
	logger *slog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		tokens:          tokens,
		status:          status,
		clientMessages:  clientMessages,
		connection:      connection,
		iframeURL:       iframeURL,
		defaultIframeID: defaultIframeID,
		logger:          logger,
	}
}

type checkoutResponse struct {
	Token     string    `json:"token"`
	IframeURL string    `json:"iframe_url"`
	ExpiresAt time.Time `json:"expires_at"`
	FromCache bool      `json:"from_cache"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid checkout payload", nil)
		return
	}
	if strings.TrimSpace(req.IframeID) == "" {
		req.IframeID = h.defaultIframeID
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	identity, _ := middleware.IdentityFromContext(r.Context())

	res, err := h.tokens.GetOrCreate(r.Context(), req, identity, refresh)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, checkoutResponse{
		Token:     res.Token,
		IframeURL: h.iframeURL(res.Token),
		ExpiresAt: res.ExpiresAt,
		FromCache: res.FromCache,
	})
}

func (h *CheckoutHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "transaction token is required", nil)
		return
	}
	status, err := h.status.Status(r.Context(), token)
	if err != nil {
		var apiErr *bna.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "transaction not found", nil)
			return
		}
		h.writeCheckoutError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *CheckoutHandler) ClientEvent(w http.ResponseWriter, r *http.Request) {
	var msg service.ClientMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid client event", nil)
		return
	}
	msg.Origin = r.Header.Get("Origin")
	out, err := h.clientMessages.Handle(r.Context(), msg)
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, out)
	case errors.Is(err, service.ErrOriginNotAllowed):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "message origin not allowed", nil)
	case errors.Is(err, service.ErrUnknownClientMessage), errors.Is(err, service.ErrStructureInvalid):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		h.logger.ErrorContext(r.Context(), "client event failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not record payment event", nil)
	}
}

type connectionTestRequest struct {
	AccessKey   string `json:"access_key"`
	SecretKey   string `json:"secret_key"`
	Environment string `json:"environment"`
}

func (h *CheckoutHandler) ConnectionTest(w http.ResponseWriter, r *http.Request) {
	var req connectionTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid connection test payload", nil)
		return
	}
	var override *bna.Credentials
	if req.AccessKey != "" || req.SecretKey != "" {
		creds := bna.Credentials{AccessKey: req.AccessKey, SecretKey: req.SecretKey}
		if req.Environment != "" {
			creds.Environment, _ = bna.ParseEnvironment(req.Environment)
		}
		override = &creds
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"connected": h.connection.Test(r.Context(), override)})
}

func (h *CheckoutHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Clear(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "clear token cache failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to clear token cache", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *CheckoutHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "cache key is required", nil)
		return
	}
	if err := h.tokens.Invalidate(r.Context(), key); err != nil {
		h.logger.ErrorContext(r.Context(), "invalidate token failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to invalidate token", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "invalidated", "cache_key": key})
}

// writeCheckoutError turns service and payment api failures into short
// messages a shopper can act on. Details stay in the log.
func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCheckout):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	case errors.Is(err, service.ErrTokenBoundElsewhere):
		h.logger.WarnContext(r.Context(), "checkout token owned by another order", "error", err)
		response.Error(w, r, http.StatusConflict, "CHECKOUT_CONFLICT", "this payment session belongs to another order, please reload the page", nil)
		return
	case service.IsCustomerConflict(err):
		h.logger.WarnContext(r.Context(), "checkout blocked by customer conflict", "error", err)
		response.Error(w, r, http.StatusConflict, "CUSTOMER_CONFLICT", service.CustomerConflictMessage, nil)
		return
	}

	h.logger.ErrorContext(r.Context(), "payment api call failed", "error", err)
	switch {
	case errors.Is(err, bna.ErrConnectivity):
		response.Error(w, r, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "the payment service is not reachable right now, please try again in a moment", nil)
	case errors.Is(err, bna.ErrAuth):
		response.Error(w, r, http.StatusBadGateway, "PAYMENT_UNAVAILABLE", "payments are not configured correctly, please contact the store", nil)
	case errors.Is(err, bna.ErrMalformedResponse), errors.Is(err, bna.ErrRemoteAPI), errors.Is(err, bna.ErrConflict):
		response.Error(w, r, http.StatusBadGateway, "PAYMENT_UNAVAILABLE", "the payment service returned an error, please try again", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "checkout could not be started", nil)
	}
}
