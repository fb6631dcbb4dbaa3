// market-links - resolves per-locale URL strategies from a shop's markets and
// rewrites links in translated HTML to match.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"market-links/internal/config"
	"market-links/internal/handler"
	"market-links/internal/localizer"
	"market-links/internal/metrics"
	"market-links/internal/middleware"
	"market-links/internal/shopify"
	"market-links/internal/store"
)

// warmConcurrency bounds the startup syncs running at once.
const warmConcurrency = 4

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a development convenience; production sets real env vars
	if os.Getenv("ENVIRONMENT") != "production" {
		_ = godotenv.Load()
	}

	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("api_version", cfg.Shopify.APIVersion),
		slog.Int("tenants", len(cfg.Shopify.Tenants)),
		slog.Duration("cache_ttl", cfg.CacheTTL),
		slog.String("default_strategy", string(cfg.DefaultStrategy)),
	)

	st, err := store.Open(store.Config{Path: cfg.DatabasePath, DefaultStrategy: cfg.DefaultStrategy})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	clientCfg := cfg.ShopifyClientConfig()
	clientCfg.Logger = logger
	client, err := shopify.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("creating shopify client: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := localizer.New(client, st, localizer.Options{
		Cache:    cfg.NewCache(),
		Recorder: metrics.NewPrometheusRecorder(reg),
		Logger:   logger,
	})

	h := handler.New(service, metrics.HTTPHandler(reg), logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery outermost so panics in logging are caught; request IDs are
	// assigned before logging reads them.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go warmTenants(ctx, service, cfg.Shopify.Tenants, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// warmTenants syncs every configured tenant once so the first requests hit a
// warm cache. Failures are logged; the service syncs lazily on demand anyway.
func warmTenants(ctx context.Context, service *localizer.Service, tenants []string, logger *slog.Logger) {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, tenant := range tenants {
		g.Go(func() error {
			if _, err := service.Sync(gctx, tenant); err != nil {
				logger.Warn("warm sync failed", slog.String("tenant", tenant), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("warm sync finished",
		slog.Int("tenants", len(tenants)),
		slog.Duration("duration", time.Since(start)),
	)
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
