// Package main is the entry point for the DineFind API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dinefind/dinefind/internal/api"
	"github.com/dinefind/dinefind/internal/auth"
	"github.com/dinefind/dinefind/internal/config"
	"github.com/dinefind/dinefind/internal/db"
	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/health"
	"github.com/dinefind/dinefind/internal/idempotency"
	"github.com/dinefind/dinefind/internal/middleware"
	"github.com/dinefind/dinefind/internal/rankcache"
	"github.com/dinefind/dinefind/internal/ranking"
	"github.com/dinefind/dinefind/internal/search"
	"github.com/dinefind/dinefind/internal/subscription"
	"github.com/dinefind/dinefind/internal/token"
	"github.com/dinefind/dinefind/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("DineFind API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Redis backs the rate limiter and the rank mirror. Both fall back to
	// local alternatives when it is absent.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "dinefind-api",
		Enabled:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-http",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplingRate: 0.1,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	searchMetrics := search.NewMetrics()
	tokenMetrics := token.NewMetrics()
	for name, m := range map[string]interface {
		Register(prometheus.Registerer) error
	}{
		"http":   httpMetrics,
		"search": searchMetrics,
		"token":  tokenMetrics,
	} {
		if err := m.Register(registry); err != nil {
			logger.Error("failed to register metrics", "collector", name, "error", err)
			os.Exit(1)
		}
	}

	calibration, err := ranking.LoadCalibration(cfg.RankCalibrationPath, logger)
	if err != nil {
		logger.Error("invalid ranking calibration", "path", cfg.RankCalibrationPath, "error", err)
		os.Exit(1)
	}
	if cfg.VelocityThresholdMPS > 0 {
		calibration.VelocityThresholdMPS = cfg.VelocityThresholdMPS
	}

	estRepo := establishment.NewPostgresRepository(database, logger)

	// The rank worker keeps the mirror warm; search reads it ahead of the
	// row cache when Redis is configured.
	var rankMirror search.RankMirror
	if redisClient != nil {
		rankMirror = rankcache.NewMirror(redisClient, rankcache.DefaultMirrorTTL)
	}
	searchService := search.NewService(estRepo, rankMirror, calibration, logger, searchMetrics)

	guard := token.NewGuard(token.NewPostgresStore(database, logger), token.GuardConfig{
		Logger:  logger,
		Metrics: tokenMetrics,
	})
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	authService := auth.NewService(jwtService, guard, logger)

	catalog := subscription.Catalog{}
	for priceID, tier := range map[string]subscription.Tier{
		cfg.StripePriceBasic:    subscription.TierBasic,
		cfg.StripePriceStandard: subscription.TierStandard,
		cfg.StripePricePremium:  subscription.TierPremium,
	} {
		if priceID != "" {
			catalog[priceID] = tier
		}
	}
	stripeClient := subscription.NewStripeClient(cfg.StripeAPIKey, catalog)
	subscriptionService := subscription.NewService(estRepo, logger)

	authHandlers := api.NewAuthHandlers(authService)
	searchHandlers := api.NewSearchHandlers(searchService)
	establishmentHandlers := api.NewEstablishmentHandlers(estRepo)
	subscriptionHandlers := api.NewSubscriptionHandlers(estRepo, stripeClient, cfg.StripeSuccessURL, cfg.StripeCancelURL)
	webhookHandlers := api.NewWebhookHandlers(cfg.StripeWebhookSecret, subscriptionService)

	healthConfig := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(database),
		StripeChecker:  health.NewStripeChecker("https://api.stripe.com/v1/charges"),
		MetricsEnabled: true,
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(healthConfig)

	idempotencyRepo := idempotency.NewInMemoryRepository()
	idempotencyStop := make(chan struct{})
	defer close(idempotencyStop)
	go idempotency.RunPeriodicCleanup(idempotencyRepo, time.Hour, idempotency.DefaultExpiry, idempotencyStop)

	var rateLimitStore middleware.RateLimitStore
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
		rateLimitStore = memStore
	}
	authLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultAuthLimit(), middleware.IPKeyFunc(), httpMetrics)
	searchLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultSearchLimit(), middleware.UserKeyFunc(), httpMetrics)

	idempotent := middleware.Idempotency(idempotencyRepo, map[string]bool{
		"/subscriptions/checkout": true,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.Handle("/search", searchLimit(http.HandlerFunc(searchHandlers.Search)))

	mux.HandleFunc("/establishments", establishmentHandlers.Create)
	mux.HandleFunc("/establishments/", establishmentHandlers.Serve)

	mux.Handle("/auth/login", authLimit(http.HandlerFunc(authHandlers.Login)))
	mux.Handle("/auth/refresh", authLimit(http.HandlerFunc(authHandlers.Refresh)))
	mux.Handle("/auth/logout", authLimit(http.HandlerFunc(authHandlers.Logout)))
	mux.Handle("/auth/logout_all", authHandlers.Authenticate(http.HandlerFunc(authHandlers.LogoutAll)))

	mux.Handle("/subscriptions/checkout",
		authHandlers.Authenticate(idempotent(http.HandlerFunc(subscriptionHandlers.Checkout))))
	mux.HandleFunc("/internal/stripe", webhookHandlers.HandleStripeWebhook)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"dinefind-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	globalLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)
	profiling := middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     cfg.Env == "development",
		Environment: cfg.Env,
	})

	// Apply middleware: RequestID -> Tracing -> Logging -> Metrics -> CORS -> RateLimit -> Profiling
	handler := middleware.RequestID(
		middleware.Tracing("dinefind-api")(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(
					middleware.CORS(middleware.CORSConfig{})(
						globalLimit(profiling(mux)))))))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
