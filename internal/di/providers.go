package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/app"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/config"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/database"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/handler"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/middleware"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/http/router"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/observability"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/repository"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/security"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/service"
)

const (
	apiRequestTimeout = 60 * time.Second
	rateLimitPrefix   = "bna_rate_limit"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(observability.NewLogger)

var RuntimeInfraSet = wire.NewSet(
	provideOpenDB,
	provideRedisClient,
	provideBNAClient,
	provideClientFactory,
	provideTokenCacheStore,
	provideCustomerIDStore,
	provideEventLedger,
	wire.Bind(new(service.PaymentAPI), new(*bna.Client)),
	wire.Bind(new(service.CustomerDirectory), new(*bna.Client)),
)

var RepositorySet = wire.NewSet(repository.NewOrderRepository)

var SecuritySet = wire.NewSet(provideStorefrontVerifier)

var ServiceSet = wire.NewSet(
	provideOrderEffects,
	service.NewOrderStatusService,
	wire.Bind(new(service.OrderStateMachine), new(*service.OrderStatusService)),
	service.NewCustomerResolver,
	provideCheckoutService,
	wire.Bind(new(service.TokenCreator), new(*service.CheckoutService)),
	provideTokenService,
	provideWebhookProcessor,
	provideClientMessageService,
	providePaymentStatusService,
	provideConnectionService,
	provideSweeper,
)

var HTTPSet = wire.NewSet(
	provideCheckoutHandler,
	provideWebhookHandler,
	provideHealthHandler,
	provideCheckoutLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideRedisClient returns nil when redis is disabled; callers fall back to
// in-process or database stores.
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func bnaClientOptions(cfg *config.Config, logger *slog.Logger) bna.ClientOptions {
	return bna.ClientOptions{
		Timeout:            cfg.BNAAPITimeout,
		PingTimeout:        cfg.BNAPingTimeout,
		TestMode:           cfg.BNATestMode,
		InsecureSkipVerify: cfg.BNAInsecureSkipVerify,
		Logger:             logger,
	}
}

func provideBNAClient(cfg *config.Config, logger *slog.Logger) *bna.Client {
	return bna.NewClient(bna.NewResolver(cfg.Credentials(), cfg.BNABaseURL), bnaClientOptions(cfg, logger))
}

// provideClientFactory applies BNA_BASE_URL only to credentials of the
// configured environment; other environments use their canonical host.
func provideClientFactory(cfg *config.Config, logger *slog.Logger) service.ClientFactory {
	return func(creds bna.Credentials) service.PaymentAPI {
		base := cfg.BNABaseURL
		if creds.Environment != "" {
			if env, _ := bna.ParseEnvironment(string(creds.Environment)); env != cfg.BNAEnvironment {
				base = ""
			}
		}
		return bna.NewClient(bna.NewResolver(creds, base), bnaClientOptions(cfg, logger))
	}
}

func provideTokenCacheStore(rdb redis.UniversalClient) service.TokenCacheStore {
	if rdb != nil {
		return service.NewRedisTokenCacheStore(rdb, "")
	}
	return service.NewInMemoryTokenCacheStore()
}

// Without redis, resolved customer ids and the event ledger live in the
// database so they survive restarts.
func provideCustomerIDStore(db *gorm.DB, rdb redis.UniversalClient) service.CustomerIDStore {
	if rdb != nil {
		return service.NewRedisCustomerIDStore(rdb, "")
	}
	return service.NewDBCustomerIDStore(db)
}

func provideEventLedger(db *gorm.DB, rdb redis.UniversalClient) service.EventLedger {
	if rdb != nil {
		return service.NewRedisEventLedger(rdb, "")
	}
	return service.NewDBEventLedger(db)
}

func provideStorefrontVerifier(cfg *config.Config) *security.StorefrontTokenVerifier {
	if cfg.StorefrontJWTSecret == "" {
		return nil
	}
	return security.NewStorefrontTokenVerifier(cfg.StorefrontJWTSecret, cfg.StorefrontJWTIssuer)
}

func provideOrderEffects(logger *slog.Logger) service.OrderEffects {
	return service.NewLoggingOrderEffects(logger)
}

func provideCheckoutService(cfg *config.Config, api service.PaymentAPI, resolver *service.CustomerResolver, ids service.CustomerIDStore, logger *slog.Logger) *service.CheckoutService {
	return service.NewCheckoutService(api, resolver, ids, cfg.CustomerIDTTL, logger)
}

func provideTokenService(cfg *config.Config, store service.TokenCacheStore, creator service.TokenCreator, machine service.OrderStateMachine, client *bna.Client, logger *slog.Logger) *service.TokenService {
	return service.NewTokenService(store, creator, machine, client.Resolver().Scope(), cfg.TokenCacheTTL, logger)
}

func provideWebhookProcessor(cfg *config.Config, machine service.OrderStateMachine, ledger service.EventLedger, logger *slog.Logger) *service.WebhookProcessor {
	return service.NewWebhookProcessor(cfg.BNAWebhookSecret, machine, ledger, cfg.EventLedgerTTL, logger)
}

func provideClientMessageService(cfg *config.Config, logger *slog.Logger) *service.ClientMessageService {
	return service.NewClientMessageService(cfg.PaymentAllowedOrigins, logger)
}

func providePaymentStatusService(cfg *config.Config, api service.PaymentAPI, machine service.OrderStateMachine, logger *slog.Logger) *service.PaymentStatusService {
	return service.NewPaymentStatusService(api, machine, cfg.ReconcileOnPoll, logger)
}

func provideConnectionService(cfg *config.Config, factory service.ClientFactory, logger *slog.Logger) *service.ConnectionService {
	return service.NewConnectionService(cfg.Credentials(), factory, logger)
}

func provideSweeper(cfg *config.Config, tokens service.TokenCacheStore, ids service.CustomerIDStore, ledger service.EventLedger, logger *slog.Logger) *service.Sweeper {
	return service.NewSweeper(tokens, ids, ledger, cfg.SweepInterval, logger)
}

func provideCheckoutHandler(
	cfg *config.Config,
	tokens *service.TokenService,
	status *service.PaymentStatusService,
	messages *service.ClientMessageService,
	connection *service.ConnectionService,
	client *bna.Client,
	logger *slog.Logger,
) *handler.CheckoutHandler {
	return handler.NewCheckoutHandler(tokens, status, messages, connection, client.Resolver().IframeURL, cfg.BNAIframeID, logger)
}

func provideWebhookHandler(processor *service.WebhookProcessor, logger *slog.Logger) *handler.WebhookHandler {
	return handler.NewWebhookHandler(processor, logger)
}

func provideHealthHandler(db *gorm.DB, rdb redis.UniversalClient) *handler.HealthHandler {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return handler.NewHealthHandler(checks)
}

// provideCheckoutLimiter shares the window across replicas through redis and
// otherwise limits per process.
func provideCheckoutLimiter(cfg *config.Config, rdb redis.UniversalClient, logger *slog.Logger) *middleware.RateLimiter {
	if rdb != nil {
		return middleware.NewDistributedRateLimiterWithKey(
			middleware.NewRedisFixedWindowLimiter(rdb, rateLimitPrefix),
			cfg.CheckoutRateLimitPerMin,
			time.Minute,
			middleware.FailOpen,
			"checkout",
			middleware.IdentityOrIPKey,
			logger,
		)
	}
	return middleware.NewDistributedRateLimiterWithKey(
		middleware.NewLocalTokenBucketLimiter(),
		cfg.CheckoutRateLimitPerMin,
		time.Minute,
		middleware.FailClosed,
		"checkout",
		middleware.IdentityOrIPKey,
		logger,
	)
}

func provideRouterDependencies(
	checkout *handler.CheckoutHandler,
	webhook *handler.WebhookHandler,
	health *handler.HealthHandler,
	verifier *security.StorefrontTokenVerifier,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) router.Dependencies {
	return router.Dependencies{
		CheckoutHandler: checkout,
		WebhookHandler:  webhook,
		HealthHandler:   health,
		StorefrontAuth:  middleware.StorefrontAuth(verifier),
		AdminAuth:       middleware.AdminAuth(cfg.AdminAPIToken),
		CheckoutLimiter: limiter,
		WebhookMaxBody:  cfg.WebhookMaxBodyBytes,
		RequestTimeout:  apiRequestTimeout,
		Logger:          logger,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      apiRequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	sweeper *service.Sweeper,
	db *gorm.DB,
	rdb redis.UniversalClient,
) *app.App {
	a := app.New(cfg, logger, server, sweeper)
	a.OnClose("database", func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if rdb != nil {
		a.OnClose("redis", rdb.Close)
	}
	return a
}

// MigrationRunner applies the schema without starting the server.
type MigrationRunner struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewMigrationRunner(db *gorm.DB, logger *slog.Logger) *MigrationRunner {
	return &MigrationRunner{db: db, logger: logger}
}

func (m *MigrationRunner) Run() error {
	if err := database.Migrate(m.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	m.logger.Info("database migrated")
	return nil
}
