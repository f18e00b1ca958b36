package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetstack/fleet-sentinel/internal/api"
	"github.com/fleetstack/fleet-sentinel/internal/cache"
	"github.com/fleetstack/fleet-sentinel/internal/config"
	"github.com/fleetstack/fleet-sentinel/internal/engine"
	"github.com/fleetstack/fleet-sentinel/internal/metrics"
	"github.com/fleetstack/fleet-sentinel/internal/repo"
	"github.com/fleetstack/fleet-sentinel/internal/services"
	"github.com/fleetstack/fleet-sentinel/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting fleet-sentinel", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var byteCache cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		if cfg.Cache.Addr != "" {
			provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
				Addr:         cfg.Cache.Addr,
				Username:     cfg.Cache.Username,
				Password:     cfg.Cache.Password,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
			})
			if err != nil {
				logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
				byteCache = cache.NewMemoryProvider()
			} else {
				byteCache = provider
			}
		} else {
			byteCache = cache.NewMemoryProvider()
		}
	}
	defer byteCache.Close()

	feedClient := repo.NewFeedClient(cfg.Clients.Feed.BaseURL, cfg.Clients.Feed.SnapshotPath, cfg.Clients.Feed.Timeout)
	embedder := repo.NewEmbedderClient(cfg.Clients.Embedder.BaseURL, cfg.Clients.Embedder.Path, cfg.Clients.Embedder.Timeout, byteCache, cfg.Cache.EmbeddingTTL)
	precedents := repo.NewPrecedentRepo(cfg.Clients.Index.Endpoint, cfg.Clients.Index.APIKey, cfg.Clients.Index.Timeout)

	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	classifier := engine.NewClassifier(source)
	scanner := engine.NewScanner(logger, classifier, source, cfg.Detection)
	resolver := engine.NewResolver(logger, embedder, precedents, cfg.Pipeline.TopK, cfg.Pipeline.ConfidenceThreshold)
	orchestrator := engine.NewOrchestrator(logger, feedClient, scanner, resolver, precedents, cfg.Pipeline.Workers)

	resultCache := cache.NewResultCache(logger, orchestrator, cfg.Pipeline.ResultTTL)
	alertService := services.NewAlertService(logger, resultCache)

	server, err := api.NewServer(cfg.Server, logger, api.NewHandlers(logger, alertService))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("fleet-sentinel stopped")
}
