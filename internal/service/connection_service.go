package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

// ClientFactory builds a payment api client for a credential set.
type ClientFactory func(creds bna.Credentials) PaymentAPI

// ConnectionService checks credentials against the payment api. Every check
// builds a fresh client so rotated or temporary credentials are never mixed
// with the running client.
type ConnectionService struct {
	defaults bna.Credentials
	factory  ClientFactory
	logger   *slog.Logger
}

func NewConnectionService(defaults bna.Credentials, factory ClientFactory, logger *slog.Logger) *ConnectionService {
	return &ConnectionService{defaults: defaults, factory: factory, logger: logger}
}

// Test uses override when it carries keys, otherwise the configured credentials.
func (s *ConnectionService) Test(ctx context.Context, override *bna.Credentials) bool {
	creds := s.defaults
	if override != nil && strings.TrimSpace(override.AccessKey) != "" && strings.TrimSpace(override.SecretKey) != "" {
		creds = *override
		if creds.Environment == "" {
			creds.Environment = s.defaults.Environment
		}
	}
	ok := s.factory(creds).TestConnection(ctx)
	s.logger.InfoContext(ctx, "payment api connection test", "environment", creds.Environment, "connected", ok, "temporary", creds != s.defaults)
	return ok
}
