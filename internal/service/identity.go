package service

import (
	"strings"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/security"
)

// Identity is the storefront shopper behind a checkout. UserID is empty for
// guests.
type Identity struct {
	UserID string
	Email  string
}

func (i Identity) LoggedIn() bool { return strings.TrimSpace(i.UserID) != "" }

// CustomerKey is the key a resolved remote customer id is remembered under.
func (i Identity) CustomerKey(email string) string {
	if i.LoggedIn() {
		return "user:" + strings.TrimSpace(i.UserID)
	}
	if strings.TrimSpace(email) == "" {
		email = i.Email
	}
	return "anon:" + security.HashEmail(email)
}
