package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/parts-catalog-importer/internal/browser"
	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/config"
	"github.com/maltedev/parts-catalog-importer/internal/database"
	"github.com/maltedev/parts-catalog-importer/internal/importer"
	"github.com/maltedev/parts-catalog-importer/internal/metrics"
	"github.com/maltedev/parts-catalog-importer/internal/storage"
	"github.com/maltedev/parts-catalog-importer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store catalog.Store
	if cfg.Import.Store == config.StoreFile {
		ps, err := storage.NewProductStorage(cfg.Import.StoreFile)
		if err != nil {
			logger.Error("failed to open catalog file", "file", cfg.Import.StoreFile, "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = database.NewProductStore(db, database.NewOutboxRepository(db, cfg.Redis.Stream), logger)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	launcher, err := browser.NewLauncher(browser.OptionsFromConfig(cfg.Browser), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}

	name := cfg.Redis.ConsumerName
	if name == "" {
		name, _ = os.Hostname()
	}

	imp := importer.New(launcher, store, importer.OptionsFromConfig(cfg), metrics.New(nil), logger)
	consumer := importer.NewStreamConsumer(rdb, imp, importer.ConsumerConfig{
		Stream:   cfg.Redis.ImportStream,
		Group:    cfg.Redis.ConsumerGroup,
		Consumer: name,
		Block:    cfg.Redis.ReadBlock,
	}, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
