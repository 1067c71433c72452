package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/response"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/security"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

type identityKey struct{}

func IdentityFromContext(ctx context.Context) (service.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(service.Identity)
	return identity, ok
}

func WithIdentity(ctx context.Context, identity service.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// StorefrontAuth reads an optional bearer token. With a nil verifier every
// request is anonymous. With a verifier a missing or invalid token is 401.
func StorefrontAuth(verifier *security.StorefrontTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), service.Identity{})))
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing storefront token", nil)
				return
			}
			claims, err := verifier.Parse(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid storefront token", nil)
				return
			}
			identity := service.Identity{UserID: claims.Subject, Email: claims.Email}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) >= len("bearer ")+1 && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
