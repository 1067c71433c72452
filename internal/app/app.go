package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/config"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

type closer struct {
	name string
	fn   func() error
}

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Sweeper *service.Sweeper

	closers  []closer
	stopOnce sync.Once

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, sweeper *service.Sweeper) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Sweeper: sweeper}
}

// OnClose registers fn to run during Shutdown, in reverse registration order.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts the sweeper and serves HTTP until the server stops. It returns
// nil after a graceful Shutdown.
func (a *App) Run(ctx context.Context) error {
	a.warnConfig()

	if a.Sweeper != nil {
		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		a.mu.Lock()
		a.cancel, a.done = cancel, done
		a.mu.Unlock()
		go func() {
			defer close(done)
			a.Sweeper.Run(sweepCtx)
		}()
	}

	a.Logger.Info("server starting", "addr", a.Server.Addr, "environment", a.Config.BNAEnvironment)
	if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (a *App) warnConfig() {
	if a.Config.WebhookAllowUnsigned() {
		a.Logger.Warn("BNA_WEBHOOK_SECRET is empty: webhook signatures will not be verified")
	}
	if a.Config.AdminAPIToken == "" {
		a.Logger.Warn("ADMIN_API_TOKEN is empty: connection test and cache routes answer 401")
	}
	if !a.Config.BNAEnvironmentKnown {
		a.Logger.Warn("unknown BNA_ENVIRONMENT, falling back to staging", "environment", a.Config.BNAEnvironmentRaw)
	}
}

// Shutdown drains in-flight requests, stops the sweeper and releases
// connections. Later calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		a.mu.Lock()
		cancel, done := a.cancel, a.done
		a.mu.Unlock()
		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("sweeper: %w", ctx.Err()))
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			c := a.closers[i]
			if err := c.fn(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		a.Logger.Info("server stopped")
	})
	return errors.Join(errs...)
}
