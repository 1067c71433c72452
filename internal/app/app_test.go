package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/config"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

func TestRunAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	sweeper := service.NewSweeper(service.NewInMemoryTokenCacheStore(), service.NewInMemoryCustomerIDStore(), service.NewInMemoryEventLedger(), time.Hour, log)
	a := New(&config.Config{BNAEnvironmentKnown: true, BNAWebhookSecret: "s"}, log, srv, sweeper)

	var closed []string
	a.OnClose("first", func() error { closed = append(closed, "first"); return nil })
	a.OnClose("second", func() error { closed = append(closed, "second"); return errors.New("boom") })

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = a.Shutdown(ctx)
	if err == nil {
		t.Fatal("expected closer error to be reported")
	}
	if len(closed) != 2 || closed[0] != "second" || closed[1] != "first" {
		t.Fatalf("expected closers in reverse order, got %v", closed)
	}
	if err := <-runErr; err != nil {
		t.Fatalf("run returned %v after graceful shutdown", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown should be a no-op, got %v", err)
	}
}

func TestStartupWarningsNameStagingFallback(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	a := New(&config.Config{BNAEnvironmentRaw: "prodction", BNAWebhookSecret: "s"}, log, &http.Server{}, nil)
	a.warnConfig()

	out := buf.String()
	if !strings.Contains(out, "falling back to staging") || strings.Contains(out, "falling back to production") {
		t.Fatalf("unexpected environment warning: %s", out)
	}
	if !strings.Contains(out, "ADMIN_API_TOKEN is empty") {
		t.Fatalf("expected admin token warning, got %s", out)
	}
}
