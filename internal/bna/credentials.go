package bna

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
)

type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

const (
	stagingBaseURL    = "https://stage-api-service.bnasmartpayment.com/v1"
	productionBaseURL = "https://api.bnasmartpayment.com/v1"
)

// ParseEnvironment maps a configured value onto the closed environment set.
// Anything unrecognised resolves to staging and reports ok=false.
func ParseEnvironment(raw string) (Environment, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod", "live":
		return EnvironmentProduction, true
	case "staging", "stage", "sandbox", "test":
		return EnvironmentStaging, true
	default:
		return EnvironmentStaging, false
	}
}

type Credentials struct {
	AccessKey   string
	SecretKey   string
	Environment Environment
}

// Resolver is immutable. Rotating credentials means building a new Resolver.
type Resolver struct {
	creds   Credentials
	baseURL string
}

func NewResolver(creds Credentials, baseURLOverride string) *Resolver {
	env, _ := ParseEnvironment(string(creds.Environment))
	creds.Environment = env
	base := strings.TrimRight(strings.TrimSpace(baseURLOverride), "/")
	if base == "" {
		base = defaultBaseURL(env)
	}
	return &Resolver{creds: creds, baseURL: base}
}

func defaultBaseURL(env Environment) string {
	if env == EnvironmentProduction {
		return productionBaseURL
	}
	return stagingBaseURL
}

func (r *Resolver) BaseURL() string { return r.baseURL }

func (r *Resolver) Environment() Environment { return r.creds.Environment }

func (r *Resolver) AccessKey() string { return r.creds.AccessKey }

func (r *Resolver) SecretKey() string { return r.creds.SecretKey }

func (r *Resolver) AuthHeader() string {
	raw := r.creds.AccessKey + ":" + r.creds.SecretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Scope identifies the credential set so cached artifacts never leak across
// credentials or environments.
func (r *Resolver) Scope() string {
	sum := sha256.Sum256([]byte(string(r.creds.Environment) + ":" + r.creds.AccessKey + ":" + r.baseURL))
	return hex.EncodeToString(sum[:8])
}

// IframeURL is the hosted payment page for a checkout token.
func (r *Resolver) IframeURL(token string) string {
	return r.baseURL + "/portal/checkout/" + url.PathEscape(token)
}

func (r *Resolver) HasCredentials() bool {
	return strings.TrimSpace(r.creds.AccessKey) != "" && strings.TrimSpace(r.creds.SecretKey) != ""
}
