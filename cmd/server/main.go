package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/parts-catalog-importer/internal/api"
	"github.com/maltedev/parts-catalog-importer/internal/browser"
	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/config"
	"github.com/maltedev/parts-catalog-importer/internal/database"
	"github.com/maltedev/parts-catalog-importer/internal/importer"
	"github.com/maltedev/parts-catalog-importer/internal/metrics"
	"github.com/maltedev/parts-catalog-importer/internal/storage"
	"github.com/maltedev/parts-catalog-importer/pkg/logger"
)

// deadLetterLimit is the number of dead-lettered events above which /health
// reports the service unavailable.
const deadLetterLimit = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]api.HealthCheck{}

	var store catalog.Store
	switch cfg.Import.Store {
	case config.StoreFile:
		ps, err := storage.NewProductStorage(cfg.Import.StoreFile)
		if err != nil {
			logger.Error("failed to open catalog file", "file", cfg.Import.StoreFile, "error", err)
			os.Exit(1)
		}
		store = ps
	default:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx, "up"); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
		store = database.NewProductStore(db, outbox, logger)
		checks["database"] = db.Ping
		checks["outbox"] = func(ctx context.Context) error {
			n, err := outbox.CountByStatus(ctx, database.OutboxStatusDeadLetter)
			if err != nil {
				return err
			}
			if n > deadLetterLimit {
				return fmt.Errorf("%d dead letter events", n)
			}
			return nil
		}

		if cfg.Redis.Enabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}
			checks["redis"] = func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}

			relay := database.NewRelay(outbox, redisClient, m, logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	launcher, err := browser.NewLauncher(browser.OptionsFromConfig(cfg.Browser), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}

	imp := importer.New(launcher, store, importer.OptionsFromConfig(cfg), m, logger)
	handlers := api.NewHandlers(imp, store, logger)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			Gatherer: reg,
			Checks:   checks,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		cancel()
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "store", cfg.Import.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
