package bna

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultPingTimeout = 10 * time.Second
	tracerName         = "github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
)

type ClientOptions struct {
	Timeout            time.Duration
	PingTimeout        time.Duration
	TestMode           bool
	InsecureSkipVerify bool
	Logger             *slog.Logger
	// HTTPClient replaces the underlying transport, mostly for tests.
	HTTPClient *http.Client
}

type Client struct {
	resolver    *Resolver
	http        *resty.Client
	pingTimeout time.Duration
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewClient(resolver *Resolver, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PingTimeout <= 0 || opts.PingTimeout > opts.Timeout {
		opts.PingTimeout = min(DefaultPingTimeout, opts.Timeout)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(resolver.BaseURL()).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", resolver.AuthHeader()).
		SetHeader("User-Agent", "bna-payment-gateway/1.0")

	// Verification is only relaxed for an explicit staging test setup.
	if opts.InsecureSkipVerify && opts.TestMode && resolver.Environment() == EnvironmentStaging {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // staging test mode only
		opts.Logger.Warn("bna client TLS verification disabled", "environment", resolver.Environment())
	}

	return &Client{
		resolver:    resolver,
		http:        rc,
		pingTimeout: opts.PingTimeout,
		tracer:      otel.Tracer(tracerName),
		logger:      opts.Logger,
	}
}

func (c *Client) Resolver() *Resolver { return c.resolver }

func (c *Client) CreateCheckoutToken(ctx context.Context, payload CheckoutPayload) (*CheckoutToken, error) {
	ctx, span := c.startSpan(ctx, "bna.CreateCheckoutToken")
	defer span.End()

	raw, err := c.do(ctx, http.MethodPost, "/checkout", payload, nil)
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	var body struct {
		Token     string          `json:"token"`
		ExpiresAt string          `json:"expiresAt"`
		ExpiresIn json.Number     `json:"expiresIn"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, endSpanErr(span, newMalformedError(http.StatusOK, raw, err))
	}
	if body.Token == "" && len(body.Data) > 0 {
		var inner struct {
			Token     string      `json:"token"`
			ExpiresAt string      `json:"expiresAt"`
			ExpiresIn json.Number `json:"expiresIn"`
		}
		if err := json.Unmarshal(body.Data, &inner); err == nil {
			body.Token, body.ExpiresAt, body.ExpiresIn = inner.Token, inner.ExpiresAt, inner.ExpiresIn
		}
	}
	if strings.TrimSpace(body.Token) == "" {
		return nil, endSpanErr(span, &Error{Kind: KindMalformedResponse, StatusCode: http.StatusOK, Message: "checkout response has no token", Body: raw})
	}
	return &CheckoutToken{Token: body.Token, ReportedExpiry: reportedExpiry(body.ExpiresAt, body.ExpiresIn, time.Now().UTC())}, nil
}

func reportedExpiry(expiresAt string, expiresIn json.Number, now time.Time) time.Time {
	if s := strings.TrimSpace(expiresAt); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	if expiresIn != "" {
		if secs, err := strconv.ParseInt(expiresIn.String(), 10, 64); err == nil && secs > 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Time{}
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	ctx, span := c.startSpan(ctx, "bna.GetTransaction")
	defer span.End()

	raw, err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	var tx Transaction
	if err := decodeMaybeEnveloped(raw, &tx); err != nil {
		return nil, endSpanErr(span, err)
	}
	return &tx, nil
}

func (c *Client) GetTransactionStatus(ctx context.Context, id string) (*TransactionStatus, error) {
	ctx, span := c.startSpan(ctx, "bna.GetTransactionStatus")
	defer span.End()

	raw, err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id)+"/status", nil, nil)
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	var st TransactionStatus
	if err := decodeMaybeEnveloped(raw, &st); err != nil {
		return nil, endSpanErr(span, err)
	}
	return &st, nil
}

func (c *Client) SearchCustomers(ctx context.Context, email string) ([]Customer, error) {
	ctx, span := c.startSpan(ctx, "bna.SearchCustomers")
	defer span.End()

	raw, err := c.do(ctx, http.MethodGet, "/customers", nil, map[string]string{"email": strings.TrimSpace(email)})
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	customers, err := normalizeCustomers(raw)
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	span.SetAttributes(attribute.Int("bna.customers.count", len(customers)))
	return customers, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	ctx, span := c.startSpan(ctx, "bna.ListCustomers")
	defer span.End()

	raw, err := c.do(ctx, http.MethodGet, "/customers", nil, nil)
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	customers, err := normalizeCustomers(raw)
	if err != nil {
		return nil, endSpanErr(span, err)
	}
	span.SetAttributes(attribute.Int("bna.customers.count", len(customers)))
	return customers, nil
}

// TestConnection never fails loudly: any problem is reported as false.
func (c *Client) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	ctx, span := c.startSpan(ctx, "bna.TestConnection")
	defer span.End()

	if _, err := c.do(ctx, http.MethodGet, "/ping", nil, nil); err != nil {
		c.logger.WarnContext(ctx, "bna connection test failed", "environment", c.resolver.Environment(), "error", err)
		_ = endSpanErr(span, err)
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, newConnectivityError(err)
	}
	status := resp.StatusCode()
	raw := resp.Body()
	c.logger.DebugContext(ctx, "bna api call", "method", method, "path", path, "status", status)
	if status >= http.StatusBadRequest {
		return nil, errorFromResponse(status, raw)
	}
	return raw, nil
}

// decodeMaybeEnveloped accepts either the object itself or {"data": object}.
func decodeMaybeEnveloped(raw []byte, out any) error {
	if !json.Valid(raw) {
		return newMalformedError(http.StatusOK, raw, fmt.Errorf("invalid json"))
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newMalformedError(http.StatusOK, raw, err)
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("bna.environment", string(c.resolver.Environment())),
	))
}

func endSpanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
