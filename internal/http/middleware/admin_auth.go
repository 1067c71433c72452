package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/response"
)

// AdminAuth guards operator routes with a shared bearer secret. An empty
// secret disables the routes: every request is 401.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "admin api is not configured", nil)
				return
			}
			raw := bearerToken(r)
			if raw == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) != 1 {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
