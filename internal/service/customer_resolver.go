package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

type CustomerDirectory interface {
	SearchCustomers(ctx context.Context, email string) ([]bna.Customer, error)
	ListCustomers(ctx context.Context) ([]bna.Customer, error)
}

// CustomerResolver finds the remote customer that already owns an email.
type CustomerResolver struct {
	directory CustomerDirectory
	logger    *slog.Logger
}

func NewCustomerResolver(directory CustomerDirectory, logger *slog.Logger) *CustomerResolver {
	return &CustomerResolver{directory: directory, logger: logger}
}

// Resolve never panics on odd payloads: every failure is reported as a
// *ConflictUnresolvedError.
func (r *CustomerResolver) Resolve(ctx context.Context, email string) (id string, err error) {
	email = strings.TrimSpace(email)
	defer func() {
		if rec := recover(); rec != nil {
			id, err = "", &ConflictUnresolvedError{Email: email, Cause: fmt.Errorf("resolve panicked: %v", rec)}
		}
	}()
	if bna.NormalizeEmail(email) == "" {
		return "", &ConflictUnresolvedError{Email: email, Cause: fmt.Errorf("empty email")}
	}

	var searchErr error
	found, err := r.directory.SearchCustomers(ctx, email)
	if err == nil {
		if c, ok := bna.FindByEmail(found, email); ok {
			r.logger.InfoContext(ctx, "customer conflict resolved", "strategy", "search", "customer_id", c.ID)
			return c.ID, nil
		}
	} else {
		searchErr = err
		r.logger.WarnContext(ctx, "customer search failed, falling back to listing", "error", err)
	}

	all, err := r.directory.ListCustomers(ctx)
	if err != nil {
		if searchErr != nil {
			err = fmt.Errorf("search: %v; list: %w", searchErr, err)
		}
		return "", &ConflictUnresolvedError{Email: email, Cause: err}
	}
	if c, ok := bna.FindByEmail(all, email); ok {
		r.logger.InfoContext(ctx, "customer conflict resolved", "strategy", "list", "customer_id", c.ID)
		return c.ID, nil
	}
	return "", &ConflictUnresolvedError{Email: email, Cause: searchErr}
}
