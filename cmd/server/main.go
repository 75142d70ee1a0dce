package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attributiongo/internal/delivery"
	"attributiongo/internal/domain"
	"attributiongo/internal/infrastructure"
	"attributiongo/internal/usecase"
	"attributiongo/pkg/config"
	"attributiongo/pkg/logger"
	"attributiongo/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("Starting server")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var closers []io.Closer
	defer func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}()

	var spendRepo domain.SpendRepository
	switch cfg.Storage.Driver {
	case "clickhouse":
		repo, err := infrastructure.NewClickHouseSpendRepository(ctx, cfg.Storage.ClickHouse, log)
		if err != nil {
			return err
		}
		closers = append(closers, repo)
		spendRepo = repo
	case "memory":
		spendRepo = infrastructure.NewSpendRepository(log)
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	var cache domain.ResultCache
	switch cfg.Cache.Driver {
	case "redis":
		redisCache, err := infrastructure.NewRedisResultCache(ctx, cfg.Cache, log)
		if err != nil {
			return err
		}
		closers = append(closers, redisCache)
		cache = redisCache
	case "memory":
		cache = infrastructure.NewMemoryResultCache(cfg.Cache.TTL)
	case "none":
		cache = infrastructure.NoopResultCache{}
	default:
		return fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}

	httpClient := infrastructure.NewHTTPClient(
		cfg.External.SpendAPIURL,
		cfg.External.SinkURL,
		cfg.External.SinkSecret,
		cfg.External.RequestTimeout,
		cfg.External.RateLimitPerSecond,
		log,
		m,
	)

	attributionService := usecase.NewAttributionService(spendRepo, cache, httpClient, cfg.Engine.AppUniverse, log, m)
	ingestService := usecase.NewIngestService(
		spendRepo,
		httpClient,
		cache,
		infrastructure.LoadSpendFixture,
		log,
		m,
		cfg.Ingest.WorkerPool,
		cfg.Ingest.BatchSize,
	)

	if cfg.Engine.SeedFile != "" {
		if _, err := os.Stat(cfg.Engine.SeedFile); err != nil {
			log.WithField("path", cfg.Engine.SeedFile).Warn("Seed file not found, starting with an empty dataset")
		} else if _, err := ingestService.LoadFixture(ctx, cfg.Engine.SeedFile); err != nil {
			return fmt.Errorf("failed to load seed file: %w", err)
		}
	}

	handlers := delivery.NewHTTPHandlers(attributionService, ingestService, log, cfg.Engine.AppLevelCostView)
	router := delivery.NewHTTPRouter(handlers, log, m, nil, cfg.Server.RequestTimeout)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]any{
			"port":    cfg.Server.Port,
			"storage": cfg.Storage.Driver,
			"cache":   cfg.Cache.Driver,
		}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
