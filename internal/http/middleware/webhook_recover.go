package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/response"
)

// WebhookRecoverer turns a panic inside a webhook handler into a 400 ack so
// the sender sees the same error shape as any other rejected delivery.
func WebhookRecoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "webhook handler panic",
					"panic", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				response.Ack(w, http.StatusBadRequest, "webhook could not be processed", "")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
