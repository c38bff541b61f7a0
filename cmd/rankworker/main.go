// Package main is the entry point for the rank cache worker.
//
// The worker owns the background jobs the API server does not run inline:
// the periodic rank cache update cycle and expired refresh token cleanup.
// It exposes /metrics and /health on its own port so it can be deployed and
// scraped independently of the API.
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

	"github.com/dinefind/dinefind/internal/config"
	"github.com/dinefind/dinefind/internal/db"
	"github.com/dinefind/dinefind/internal/establishment"
	"github.com/dinefind/dinefind/internal/jobs"
	"github.com/dinefind/dinefind/internal/middleware"
	"github.com/dinefind/dinefind/internal/rankcache"
	"github.com/dinefind/dinefind/internal/token"
)

const tokenCleanupInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	once := flag.Bool("once", false, "run a single update cycle and exit")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("DineFind Rank Worker")
		fmt.Println()
		fmt.Println("Usage: rankworker [options]")
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

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	var mirror *rankcache.Mirror
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		mirror = rankcache.NewMirror(client, rankcache.DefaultMirrorTTL)
	}

	registry := prometheus.NewRegistry()
	rankMetrics := rankcache.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	if err := rankMetrics.Register(registry); err != nil {
		logger.Error("failed to register rank metrics", "error", err)
		os.Exit(1)
	}
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	estRepo := establishment.NewPostgresRepository(database, logger)
	tokenStore := token.NewPostgresStore(database, logger)

	updater := rankcache.NewUpdater(rankcache.UpdaterConfig{
		ActiveInterval:   time.Duration(cfg.RankActiveIntervalMins) * time.Minute,
		InactiveInterval: time.Duration(cfg.RankInactiveIntervalMins) * time.Minute,
		Logger:           logger,
		Metrics:          rankMetrics,
		JobMetrics:       jobMetrics,
	}, estRepo, mirror)

	if *once {
		logger.Info("running single update cycle")
		updater.UpdateNow(ctx)
		return
	}

	if err := updater.Start(ctx); err != nil {
		logger.Error("failed to start rank updater", "error", err)
		os.Exit(1)
	}

	cleanupStop := make(chan struct{})
	go runTokenCleanup(ctx, logger, tokenStore, jobMetrics, cleanupStop)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !updater.IsRunning() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"stopped"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting rank worker", "port", cfg.Port,
			"active_interval_mins", cfg.RankActiveIntervalMins,
			"inactive_interval_mins", cfg.RankInactiveIntervalMins,
			"mirror_enabled", mirror != nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down rank worker...")

	close(cleanupStop)
	updater.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("rank worker stopped")
}

// runTokenCleanup periodically deletes expired refresh tokens. Expired tokens
// can never be rotated, so removal loses no reuse-detection state.
func runTokenCleanup(ctx context.Context, logger *slog.Logger, store *token.PostgresStore, metrics *jobs.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			removed, err := store.DeleteExpired(ctx, time.Now())
			metrics.ObserveJobDuration(jobs.JobTypeTokenCleanup, time.Since(start).Seconds())
			if err != nil {
				logger.Error("token cleanup failed", "error", err)
				metrics.IncJobsTotal(jobs.JobTypeTokenCleanup, "error")
				metrics.IncJobErrors(jobs.JobTypeTokenCleanup, "delete_error")
				continue
			}
			metrics.IncJobsTotal(jobs.JobTypeTokenCleanup, "success")
			if removed > 0 {
				logger.Info("expired refresh tokens removed", "count", removed)
			}
		}
	}
}
