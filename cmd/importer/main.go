package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

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
	var (
		queries   = flag.String("q", "", "Comma-separated list of articles or product URLs to import")
		inputFile = flag.String("file", "", "File containing articles or URLs (one per line)")
		output    = flag.String("output", "table", "Output format: table, json")
		workers   = flag.Int("workers", 0, "Parallel browser sessions (overrides IMPORT_WORKERS)")
		headless  = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Import.Workers = *workers
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	list, err := loadQueries(*queries, *inputFile)
	if err != nil {
		logger.Error("failed to load queries", "error", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Println("Nothing to import. Use -q or -file to specify articles or URLs.")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open catalog store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	browserOpts := browser.OptionsFromConfig(cfg.Browser)
	browserOpts.Headless = *headless && cfg.Browser.Headless

	launcher, err := browser.NewLauncher(browserOpts, logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}

	imp := importer.New(launcher, store, importer.OptionsFromConfig(cfg), metrics.New(nil), logger)

	var summary *importer.Summary
	if len(list) == 1 {
		summary = importer.Summarize([]*importer.Outcome{imp.ImportProduct(ctx, list[0])})
	} else {
		summary = imp.ImportBatch(ctx, list)
	}

	if err := printSummary(summary, *output); err != nil {
		logger.Error("failed to print summary", "error", err)
	}

	if len(list) == 1 && len(summary.Failed) == 1 {
		os.Exit(1)
	}
}

func loadQueries(csv, inputFile string) ([]string, error) {
	var out []string

	if csv != "" {
		out = append(out, strings.Split(csv, ",")...)
	}

	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		out = append(out, strings.Split(string(data), "\n")...)
	}

	queries := make([]string, 0, len(out))
	for _, q := range out {
		q = strings.TrimSpace(q)
		if q == "" || strings.HasPrefix(q, "#") {
			continue
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// openStore returns the catalog store selected by IMPORT_STORE and a func
// releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Store, func(), error) {
	if cfg.Import.Store == config.StoreFile {
		ps, err := storage.NewProductStorage(cfg.Import.StoreFile)
		if err != nil {
			return nil, nil, err
		}
		return ps, func() {}, nil
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
	return database.NewProductStore(db, outbox, logger), db.Close, nil
}

func printSummary(s *importer.Summary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUERY\tSTATUS\tARTICLE\tREASON\tDETAIL")
	for _, o := range s.Outcomes {
		article, detail := "", o.Error
		switch {
		case o.Record != nil:
			article, detail = o.Record.Article, o.Record.Title
		case o.Existing != nil:
			article = o.Existing.Article
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Query, o.Status, article, o.Reason, detail)
	}
	fmt.Fprintf(w, "\ncommitted: %d\tskipped: %d\tfailed: %d\n", len(s.Committed), len(s.Skipped), len(s.Failed))
	return w.Flush()
}
