package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	DatabaseURL string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BNAAccessKey          string
	BNASecretKey          string
	BNAEnvironment        bna.Environment
	BNAEnvironmentRaw     string
	BNAEnvironmentKnown   bool
	BNAIframeID           string
	BNABaseURL            string
	BNATestMode           bool
	BNAInsecureSkipVerify bool
	BNAWebhookSecret      string
	BNAAPITimeout         time.Duration
	BNAPingTimeout        time.Duration

	TokenCacheTTL       time.Duration
	RemoteTokenLifetime time.Duration
	CustomerIDTTL       time.Duration
	EventLedgerTTL      time.Duration
	SweepInterval       time.Duration

	PaymentAllowedOrigins   []string
	StorefrontJWTSecret     string
	StorefrontJWTIssuer     string
	AdminAPIToken           string
	CheckoutRateLimitPerMin int
	ReconcileOnPoll         bool
	WebhookMaxBodyBytes     int64
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// already present in the process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (*Config, error) {
	envRaw := getEnv("BNA_ENVIRONMENT", string(bna.EnvironmentStaging))
	env, known := bna.ParseEnvironment(envRaw)
	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisEnabled:            getEnvBool("REDIS_ENABLED", false),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		BNAAccessKey:            strings.TrimSpace(os.Getenv("BNA_ACCESS_KEY")),
		BNASecretKey:            strings.TrimSpace(os.Getenv("BNA_SECRET_KEY")),
		BNAEnvironment:          env,
		BNAEnvironmentRaw:       envRaw,
		BNAEnvironmentKnown:     known,
		BNAIframeID:             strings.TrimSpace(os.Getenv("BNA_IFRAME_ID")),
		BNABaseURL:              strings.TrimSpace(os.Getenv("BNA_BASE_URL")),
		BNATestMode:             getEnvBool("BNA_TEST_MODE", false),
		BNAInsecureSkipVerify:   getEnvBool("BNA_INSECURE_SKIP_VERIFY", false),
		BNAWebhookSecret:        os.Getenv("BNA_WEBHOOK_SECRET"),
		PaymentAllowedOrigins:   splitCSV(os.Getenv("PAYMENT_ALLOWED_ORIGINS")),
		StorefrontJWTSecret:     os.Getenv("STOREFRONT_JWT_SECRET"),
		StorefrontJWTIssuer:     os.Getenv("STOREFRONT_JWT_ISSUER"),
		AdminAPIToken:           strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		CheckoutRateLimitPerMin: getEnvInt("CHECKOUT_RATE_LIMIT_PER_MIN", 30),
		ReconcileOnPoll:         getEnvBool("RECONCILE_ON_POLL", true),
		WebhookMaxBodyBytes:     int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"BNA_API_TIMEOUT", "30s", &cfg.BNAAPITimeout},
		{"BNA_PING_TIMEOUT", "10s", &cfg.BNAPingTimeout},
		{"TOKEN_CACHE_TTL", "25m", &cfg.TokenCacheTTL},
		{"REMOTE_TOKEN_LIFETIME", "30m", &cfg.RemoteTokenLifetime},
		{"CUSTOMER_ID_TTL", "168h", &cfg.CustomerIDTTL},
		{"EVENT_LEDGER_TTL", "72h", &cfg.EventLedgerTTL},
		{"SWEEP_INTERVAL", "5m", &cfg.SweepInterval},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	if len(cfg.PaymentAllowedOrigins) == 0 {
		cfg.PaymentAllowedOrigins = DefaultAllowedOrigins(cfg.BNAEnvironment)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultAllowedOrigins is the iframe host of the environment.
func DefaultAllowedOrigins(env bna.Environment) []string {
	if env == bna.EnvironmentProduction {
		return []string{"https://api.bnasmartpayment.com"}
	}
	return []string{"https://stage-api-service.bnasmartpayment.com"}
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.BNAAccessKey == "" {
		errs = append(errs, "BNA_ACCESS_KEY is required")
	}
	if c.BNASecretKey == "" {
		errs = append(errs, "BNA_SECRET_KEY is required")
	}
	if c.BNAIframeID == "" {
		errs = append(errs, "BNA_IFRAME_ID is required")
	}
	if c.BNAInsecureSkipVerify && (c.BNAEnvironment != bna.EnvironmentStaging || !c.BNATestMode) {
		errs = append(errs, "BNA_INSECURE_SKIP_VERIFY is only allowed with BNA_TEST_MODE in staging")
	}
	if c.BNAAPITimeout <= 0 || c.BNAAPITimeout > 2*time.Minute {
		errs = append(errs, "BNA_API_TIMEOUT must be between 1s and 2m")
	}
	if c.BNAPingTimeout <= 0 || c.BNAPingTimeout > c.BNAAPITimeout {
		errs = append(errs, "BNA_PING_TIMEOUT must be > 0 and not exceed BNA_API_TIMEOUT")
	}
	if c.TokenCacheTTL <= 0 {
		errs = append(errs, "TOKEN_CACHE_TTL must be > 0")
	}
	if c.TokenCacheTTL >= c.RemoteTokenLifetime {
		errs = append(errs, "TOKEN_CACHE_TTL must be shorter than REMOTE_TOKEN_LIFETIME")
	}
	if c.CustomerIDTTL < 7*24*time.Hour {
		errs = append(errs, "CUSTOMER_ID_TTL must be at least 168h")
	}
	if c.EventLedgerTTL <= 0 {
		errs = append(errs, "EVENT_LEDGER_TTL must be > 0")
	}
	if c.SweepInterval < time.Second {
		errs = append(errs, "SWEEP_INTERVAL must be at least 1s")
	}
	if c.CheckoutRateLimitPerMin <= 0 {
		errs = append(errs, "CHECKOUT_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.WebhookMaxBodyBytes <= 0 {
		errs = append(errs, "WEBHOOK_MAX_BODY_BYTES must be > 0")
	}
	if c.StorefrontJWTSecret != "" && len(c.StorefrontJWTSecret) < 32 {
		errs = append(errs, "STOREFRONT_JWT_SECRET must be at least 32 chars")
	}
	if c.AdminAPIToken != "" && len(c.AdminAPIToken) < 32 {
		errs = append(errs, "ADMIN_API_TOKEN must be at least 32 chars")
	}
	if c.IsProduction() && c.AdminAPIToken == "" {
		errs = append(errs, "ADMIN_API_TOKEN is required in production")
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// WebhookAllowUnsigned reports whether deliveries are accepted without a
// signature check.
func (c *Config) WebhookAllowUnsigned() bool {
	return c.BNAWebhookSecret == ""
}

func (c *Config) Credentials() bna.Credentials {
	return bna.Credentials{AccessKey: c.BNAAccessKey, SecretKey: c.BNASecretKey, Environment: c.BNAEnvironment}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
