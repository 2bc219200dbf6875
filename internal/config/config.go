package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	defaultQuoteTTLSeconds = 600
	defaultPayloadVersion  = "1"
	defaultCartMaxLines    = 100
	defaultBodyLimitBytes  = 64 << 10
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string
	RedisURL  string

	// SigningSecret is never logged.
	SigningSecret  string
	PayloadVersion string
	QuoteTTL       time.Duration

	CatalogPath         string
	CatalogURL          string
	CatalogFetchTimeout time.Duration
	CatalogCacheTTL     time.Duration
	CartMaxLines        int

	CORSAllowedOrigins   []string
	QuoteAPIKey          string
	RateLimitQuoteMax    int
	RateLimitQuoteWindow time.Duration
	BodyLimitBytes       int64
	SecureHeaders        bool

	MetricsNamespace string
	MetricsBuckets   string
	TracingExporter  string
	TracingEndpoint  string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:    valueOrDefault(k.String("APP_ENV"), "development"),
		Port:      valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		RedisURL:  strings.TrimSpace(k.String("REDIS_URL")),

		SigningSecret:  k.String("QUOTE_SIGNING_SECRET"),
		PayloadVersion: valueOrDefault(strings.TrimSpace(k.String("QUOTE_PAYLOAD_VERSION")), defaultPayloadVersion),
		QuoteTTL:       parseTTLSeconds(k.String("QUOTE_TTL_SECONDS"), defaultQuoteTTLSeconds),

		CatalogPath:         strings.TrimSpace(k.String("CATALOG_PATH")),
		CatalogURL:          strings.TrimSpace(k.String("CATALOG_URL")),
		CatalogFetchTimeout: parseDuration(k.String("CATALOG_FETCH_TIMEOUT"), "5s"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "10m"),
		CartMaxLines:        parsePositiveInt(k.String("CART_MAX_LINES"), defaultCartMaxLines),

		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		QuoteAPIKey:          strings.TrimSpace(k.String("QUOTE_API_KEY")),
		RateLimitQuoteMax:    parsePositiveInt(k.String("RATE_LIMIT_QUOTE_MAX"), 60),
		RateLimitQuoteWindow: parseDuration(k.String("RATE_LIMIT_QUOTE_WINDOW"), "1m"),
		BodyLimitBytes:       int64(parsePositiveInt(k.String("HTTP_BODY_LIMIT_BYTES"), defaultBodyLimitBytes)),
		SecureHeaders:        parseBoolDefault(k.String("SECURE_HEADERS_ENABLE"), true),

		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "bundlequote"),
		MetricsBuckets:   k.String("METRICS_BUCKETS_MS"),
		TracingExporter:  valueOrDefault(k.String("OTEL_TRACES_EXPORTER"), "none"),
		TracingEndpoint:  k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingSampling:  parseRatio(k.String("OTEL_TRACES_SAMPLER_RATIO"), 1),
	}

	if cfg.CatalogPath != "" && cfg.CatalogURL != "" {
		return nil, errors.New("CATALOG_PATH and CATALOG_URL are mutually exclusive")
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "prod", "production":
		return true
	}
	return false
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// parseTTLSeconds accepts a positive, finite number of seconds. Fractions are
// truncated; anything else yields the default.
func parseTTLSeconds(value string, fallback int64) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 || f > math.MaxInt32 {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(int64(f)) * time.Second
}

func parsePositiveInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseRatio(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 || f > 1 {
		return fallback
	}
	return f
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
