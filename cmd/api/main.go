package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/noah-isme/bundle-quote/internal/app"
	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/config"
	"github.com/noah-isme/bundle-quote/internal/health"
	"github.com/noah-isme/bundle-quote/internal/obs"
	"github.com/noah-isme/bundle-quote/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, registry)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), registry)

	tracing := cfg.TracingExporter != "none"
	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "bundle-quote",
		Endpoint:      cfg.TracingEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingSampling,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		tracing = false
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	redisClient, err := app.NewRedis(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	if cfg.SigningSecret == "" {
		logger.Warn().Msg("QUOTE_SIGNING_SECRET not set; quote signing will fail")
	}

	breaker := app.NewCatalogBreaker(logger, resilience.NewMetrics(cfg.MetricsNamespace, registry))
	source, sourceName := app.NewCatalogSource(cfg, redisClient, breaker)
	catalogs := catalog.NewCached(source)
	logger.Info().
		Str("catalog_source", sourceName).
		Bool("redis", redisClient != nil).
		Dur("quote_ttl", cfg.QuoteTTL).
		Str("payload_version", cfg.PayloadVersion).
		Msg("quote service configured")

	router := app.NewRouter(app.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Redis:       redisClient,
		Catalog:     catalogs,
		Signer:      app.NewSigner(cfg),
		Validator:   validator.New(),
		Limiter:     app.NewLimiter(redisClient),
		Registry:    registry,
		HTTPMetrics: httpMetrics,
		Tracing:     tracing,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}
