package service

import (
	"context"
	"testing"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

func TestConnectionServiceBuildsFreshClientPerCheck(t *testing.T) {
	defaults := bna.Credentials{AccessKey: "ak", SecretKey: "sk", Environment: bna.EnvironmentStaging}
	var seen []bna.Credentials
	factory := func(creds bna.Credentials) PaymentAPI {
		seen = append(seen, creds)
		return &stubPaymentAPI{pingFn: func(context.Context) bool { return creds.AccessKey == "ak" }}
	}
	svc := NewConnectionService(defaults, factory, discardLogger())

	if !svc.Test(context.Background(), nil) {
		t.Fatal("expected configured credentials to connect")
	}
	if svc.Test(context.Background(), &bna.Credentials{AccessKey: "temp", SecretKey: "temp-secret"}) {
		t.Fatal("expected temporary credentials to be used and fail")
	}
	if !svc.Test(context.Background(), &bna.Credentials{AccessKey: "temp"}) {
		t.Fatal("incomplete override must fall back to configured credentials")
	}

	if len(seen) != 3 {
		t.Fatalf("expected a client per check, got %d", len(seen))
	}
	if seen[1].AccessKey != "temp" || seen[1].Environment != bna.EnvironmentStaging {
		t.Fatalf("override should inherit the configured environment, got %+v", seen[1])
	}
	if seen[2] != defaults {
		t.Fatalf("expected defaults for incomplete override, got %+v", seen[2])
	}
}
