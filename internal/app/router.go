package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/health"
	"github.com/noah-isme/bundle-quote/internal/obs"
	"github.com/noah-isme/bundle-quote/internal/quote"
	"github.com/noah-isme/bundle-quote/internal/ratelimit"
	"github.com/noah-isme/bundle-quote/internal/security"
)

// NewRouter mounts health, metrics and the quote API.
func NewRouter(d Dependencies) http.Handler {
	cfg := d.Config
	logger := d.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecureHeaders, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", security.APIKeyHeader},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	if d.Registry != nil {
		r.Handle("/metrics", obs.MetricsHandler(d.Registry))
	}

	healthHandler := health.Handler{Checker: health.Dependencies{Catalog: d.Catalog, Redis: d.Redis}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	quoteHandler := &quote.Handler{
		Catalog:    d.Catalog,
		Normalizer: cart.Normalizer{MaxLines: cfg.CartMaxLines},
		Signer:     d.Signer,
		Validate:   d.Validator,
		Logger:     logger,
	}
	limit := ratelimit.Handler{
		Limiter: d.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("quote"),
			Window: cfg.RateLimitQuoteWindow,
			Max:    cfg.RateLimitQuoteMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/catalog", quoteHandler.CatalogDocument)
		v.Route("/cart", func(c chi.Router) {
			c.Use(security.APIKey{Key: cfg.QuoteAPIKey}.Middleware)
			c.Use(limit.Middleware)
			c.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
			c.Post("/quote", quoteHandler.Quote)
			c.Post("/quote/verify", quoteHandler.Verify)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
