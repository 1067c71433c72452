package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/handler"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/middleware"
)

type Dependencies struct {
	CheckoutHandler *handler.CheckoutHandler
	WebhookHandler  *handler.WebhookHandler
	HealthHandler   *handler.HealthHandler
	// StorefrontAuth resolves the shopper identity on storefront routes.
	StorefrontAuth func(http.Handler) http.Handler
	// AdminAuth guards cache and connection routes. Nil refuses every call.
	AdminAuth       func(http.Handler) http.Handler
	CheckoutLimiter *middleware.RateLimiter
	WebhookMaxBody  int64
	RequestTimeout  time.Duration
	Logger          *slog.Logger
}

func NewRouter(dep Dependencies) http.Handler {
	adminAuth := dep.AdminAuth
	if adminAuth == nil {
		adminAuth = middleware.AdminAuth("")
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(dep.Logger))

	r.Group(func(hooks chi.Router) {
		hooks.Use(middleware.WebhookRecoverer(dep.Logger))
		hooks.Use(middleware.MaxBodyBytes(dep.WebhookMaxBody))
		hooks.Post("/webhooks/bna", dep.WebhookHandler.Receive)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Recoverer)
		r.Get("/healthz", dep.HealthHandler.Healthz)

		r.Route("/api/v1", func(api chi.Router) {
			if dep.RequestTimeout > 0 {
				api.Use(chimiddleware.Timeout(dep.RequestTimeout))
			}
			api.Use(middleware.MaxBodyBytes(dep.WebhookMaxBody))

			api.Group(func(admin chi.Router) {
				admin.Use(adminAuth)
				admin.Post("/connection/test", dep.CheckoutHandler.ConnectionTest)
				admin.Delete("/checkout/cache", dep.CheckoutHandler.ClearCache)
				admin.Delete("/checkout/cache/{key}", dep.CheckoutHandler.InvalidateCache)
			})

			api.Group(func(store chi.Router) {
				if dep.StorefrontAuth != nil {
					store.Use(dep.StorefrontAuth)
				}
				checkout := store.With()
				if dep.CheckoutLimiter != nil {
					checkout = store.With(dep.CheckoutLimiter.Middleware())
				}
				checkout.Post("/checkout", dep.CheckoutHandler.Checkout)

				store.Get("/payments/{token}/status", dep.CheckoutHandler.PaymentStatus)
				store.Post("/payments/client-events", dep.CheckoutHandler.ClientEvent)
			})
		})
	})
	return r
}
