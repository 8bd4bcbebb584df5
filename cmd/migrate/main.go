package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/maltedev/parts-catalog-importer/internal/config"
	"github.com/maltedev/parts-catalog-importer/internal/database"
	"github.com/maltedev/parts-catalog-importer/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down|status|version|redo|reset] [args]\n", os.Args[0])
	}
	flag.Parse()

	command := "up"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("running migrations", "command", command)
	if err := db.Migrate(ctx, command, args...); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
	logger.Info("migrations finished", "command", command)
}
