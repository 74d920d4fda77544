// Package config loads the dashboard service configuration from the
// environment. The resulting Config is built once at startup and passed by
// value into constructors; nothing in the service reads the environment
// after Load returns.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Shutdown  ShutdownConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	OIDC      OIDCConfig
	Session   SessionConfig
}

type ServiceConfig struct {
	Name    string
	Version string
	Env     string
	Port    string
}

type LoggingConfig struct {
	Level string
}

type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

type ProfilingConfig struct {
	Enabled  bool
	Endpoint string
}

type ShutdownConfig struct {
	Timeout             string
	ReadinessDrainDelay string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// OIDCConfig describes the relying party registration at the identity provider.
type OIDCConfig struct {
	Authority             string
	ClientID              string
	ClientSecret          string
	RedirectURI           string
	PostLogoutRedirectURI string
	Scopes                []string

	loginHints map[string]string
}

// LoginHints returns a copy of the provider-specific parameters forwarded
// verbatim on every login redirect.
func (o OIDCConfig) LoginHints() map[string]string {
	out := make(map[string]string, len(o.loginHints))
	for k, v := range o.loginHints {
		out[k] = v
	}
	return out
}

// WithLoginHints returns a copy of o carrying the given login hints.
func (o OIDCConfig) WithLoginHints(hints map[string]string) OIDCConfig {
	o.loginHints = make(map[string]string, len(hints))
	for k, v := range hints {
		o.loginHints[k] = v
	}
	return o
}

// SessionConfig controls the browser-side session cookie and the
// login transaction cookie.
type SessionConfig struct {
	Store          string
	CookieName     string
	CookieSecret   string
	CookieSecure   bool
	CookieDomain   string
	TransactionTTL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Service: ServiceConfig{
			Name:    getEnv("SERVICE_NAME", "account-dashboard"),
			Version: getEnv("SERVICE_VERSION", "dev"),
			Env:     getEnv("ENV", "development"),
			Port:    getEnv("PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvBool("TRACING_ENABLED", false),
			Endpoint:   getEnv("OTEL_COLLECTOR_ENDPOINT", "localhost:4318"),
			SampleRate: getEnvFloat("OTEL_SAMPLE_RATE", 0.1),
		},
		Profiling: ProfilingConfig{
			Enabled:  getEnvBool("PROFILING_ENABLED", false),
			Endpoint: getEnv("PYROSCOPE_ENDPOINT", "http://localhost:4040"),
		},
		Shutdown: ShutdownConfig{
			Timeout:             getEnv("SHUTDOWN_TIMEOUT", "10s"),
			ReadinessDrainDelay: getEnv("READINESS_DRAIN_DELAY", "5s"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvInt("DB_POOL_MAX_CONNECTIONS", 10)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "dash"),
		},
		OIDC: OIDCConfig{
			Authority:             getEnv("OIDC_AUTHORITY", ""),
			ClientID:              getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret:          getEnv("OIDC_CLIENT_SECRET", ""),
			RedirectURI:           getEnv("OIDC_REDIRECT_URI", ""),
			PostLogoutRedirectURI: getEnv("OIDC_POST_LOGOUT_REDIRECT_URI", ""),
			Scopes:                strings.Fields(getEnv("OIDC_SCOPES", "openid profile email")),
			loginHints:            parseHints(getEnv("OIDC_LOGIN_HINTS", "login_hint=default-authentication-flow")),
		},
		Session: SessionConfig{
			Store:          getEnv("SESSION_STORE", StoreRedis),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "_dashboard_session"),
			CookieSecret:   getEnv("SESSION_COOKIE_SECRET", ""),
			CookieSecure:   getEnvBool("SESSION_COOKIE_SECURE", true),
			CookieDomain:   getEnv("SESSION_COOKIE_DOMAIN", ""),
			TransactionTTL: getEnv("LOGIN_TRANSACTION_TTL", "10m"),
		},
	}
	if cfg.OIDC.PostLogoutRedirectURI == "" {
		cfg.OIDC.PostLogoutRedirectURI = cfg.OIDC.RedirectURI
	}
	return cfg
}

// Validate reports every configuration problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.OIDC.Authority == "" {
		errs = append(errs, errors.New("OIDC_AUTHORITY is required"))
	}
	if c.OIDC.ClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required"))
	}
	if _, err := absoluteURL(c.OIDC.RedirectURI); err != nil {
		errs = append(errs, fmt.Errorf("OIDC_REDIRECT_URI: %w", err))
	}
	if _, err := absoluteURL(c.OIDC.PostLogoutRedirectURI); err != nil {
		errs = append(errs, fmt.Errorf("OIDC_POST_LOGOUT_REDIRECT_URI: %w", err))
	}
	if len(c.Session.CookieSecret) < 32 {
		errs = append(errs, errors.New("SESSION_COOKIE_SECRET must be at least 32 bytes"))
	}
	switch c.Session.Store {
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_STORE=redis"))
		}
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when SESSION_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreRedis, StorePostgres, c.Session.Store))
	}
	for _, d := range []struct{ name, value string }{
		{"SHUTDOWN_TIMEOUT", c.Shutdown.Timeout},
		{"READINESS_DRAIN_DELAY", c.Shutdown.ReadinessDrainDelay},
		{"LOGIN_TRANSACTION_TTL", c.Session.TransactionTTL},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}

// GetShutdownTimeoutDuration returns the graceful shutdown timeout.
func (c Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Shutdown.Timeout, 10*time.Second)
}

// GetReadinessDrainDelayDuration returns how long /ready reports 503 before
// the HTTP server is shut down.
func (c Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDuration(c.Shutdown.ReadinessDrainDelay, 5*time.Second)
}

// GetTransactionTTLDuration returns the lifetime of a pending login transaction.
func (c Config) GetTransactionTTLDuration() time.Duration {
	return parseDuration(c.Session.TransactionTTL, 10*time.Minute)
}

func absoluteURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}

// parseHints parses "k1=v1,k2=v2". Entries without '=' are ignored.
func parseHints(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}
