package app

import (
	"context"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/config"
	"github.com/noah-isme/bundle-quote/internal/obs"
	"github.com/noah-isme/bundle-quote/internal/quote"
	"github.com/noah-isme/bundle-quote/internal/ratelimit"
	"github.com/noah-isme/bundle-quote/internal/resilience"
)

// Dependencies enumerates the services shared by the HTTP surface.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Redis     *redis.Client
	Catalog   *catalog.Cached
	Signer    *quote.Signer
	Validator *validator.Validate
	Limiter   ratelimit.Allower

	// Registry serves /metrics. Nil disables metrics.
	Registry    *prometheus.Registry
	HTTPMetrics *obs.HTTPMetrics
	Tracing     bool
}

// NewRedis connects to REDIS_URL with tracing and metrics instrumentation.
// It returns nil when no URL is configured.
func NewRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewCatalogBreaker guards remote catalog fetches.
func NewCatalogBreaker(logger zerolog.Logger, metrics *resilience.Metrics) *resilience.Breaker {
	return resilience.NewBreaker(3, 0.5, 30*time.Second).
		WithTarget("catalog").
		WithLogger(logger).
		WithMetrics(metrics)
}

// NewCatalogSource picks the catalog document source: a remote URL (fronted by
// the Redis document cache when Redis is available), a local file or the
// embedded default. Remote fetches are retried behind breaker when non-nil.
// The returned name labels load metrics.
func NewCatalogSource(cfg *config.Config, rdb *redis.Client, breaker *resilience.Breaker) (catalog.Source, string) {
	var (
		source catalog.Source
		name   string
	)
	switch {
	case cfg.CatalogURL != "":
		source = retrySource(catalog.HTTPSource{URL: cfg.CatalogURL, Client: catalog.NewHTTPClient(cfg.CatalogFetchTimeout)}, breaker)
		name = "http"
		if rdb != nil {
			source = catalog.NewRedisCache(rdb, "", cfg.CatalogCacheTTL, source)
			name = "http+redis"
		}
	case cfg.CatalogPath != "":
		source, name = catalog.FileSource{Path: cfg.CatalogPath}, "file"
	default:
		source, name = catalog.EmbeddedSource{}, "embedded"
	}
	return instrumentSource(name, source), name
}

func retrySource(next catalog.Source, breaker *resilience.Breaker) catalog.Source {
	policy := resilience.Policy{
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Jitter:      0.2,
		Breaker:     breaker,
	}
	return catalog.SourceFunc(func(ctx context.Context) ([]byte, error) {
		var data []byte
		err := resilience.Retry(ctx, policy, func(ctx context.Context) error {
			var err error
			data, err = next.Load(ctx)
			return err
		})
		return data, err
	})
}

func instrumentSource(name string, next catalog.Source) catalog.Source {
	return catalog.SourceFunc(func(ctx context.Context) ([]byte, error) {
		data, err := next.Load(ctx)
		obs.ObserveCatalogLoad(name, err)
		return data, err
	})
}

// NewLimiter returns the Redis sliding window limiter when Redis is configured
// and an in-process limiter otherwise.
func NewLimiter(rdb *redis.Client) ratelimit.Allower {
	if rdb != nil {
		return ratelimit.RedisLimiter{Client: rdb, Prefix: "ratelimit:"}
	}
	return ratelimit.NewMemoryLimiter("ratelimit")
}

// NewSigner builds the quote signer from configuration.
func NewSigner(cfg *config.Config) *quote.Signer {
	return quote.NewSigner(quote.SignerConfig{
		Secret:  cfg.SigningSecret,
		Version: cfg.PayloadVersion,
		TTL:     cfg.QuoteTTL,
	})
}
