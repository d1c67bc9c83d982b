package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "pricescout/searchservice/internal/api/http"
	"pricescout/searchservice/internal/app"
	"pricescout/searchservice/internal/metrics"
	"pricescout/searchservice/internal/telemetry"
)

const serviceName = "pricescout-search"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("configuration rejected", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("searchBudget", cfg.SearchBudget),
		slog.Duration("callTimeout", cfg.CallTimeout),
		slog.Int("workers", cfg.Workers),
		slog.Any("sources", cfg.Sources),
		slog.Any("fallbackSources", cfg.FallbackSources),
		slog.Float64("relevanceThreshold", cfg.RelevanceThreshold),
		slog.Bool("hasOpenAIKey", cfg.OpenAIAPIKey != ""),
		slog.Bool("hasRedis", cfg.RedisURL != ""),
		slog.Bool("cacheEnabled", cfg.CacheEnabled),
		slog.Bool("adapterBreaker", cfg.AdapterBreaker),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := app.BuildService(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("search service setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}()

	handler := apihttp.NewServer(runtime.Service,
		apihttp.WithLogger(logger),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A search may spend its whole budget and then the fallback budget. The
		// slack covers the query rewrite.
		WriteTimeout: cfg.SearchBudget + cfg.FallbackBudget + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("pricescout search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Int("sources", len(runtime.Service.Sources())),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("pricescout search service stopped")
}
