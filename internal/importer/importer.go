package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/parts-catalog-importer/internal/browser"
	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/config"
	"github.com/maltedev/parts-catalog-importer/internal/metrics"
	"github.com/maltedev/parts-catalog-importer/internal/models"
	"github.com/maltedev/parts-catalog-importer/internal/normalizer"
	"github.com/maltedev/parts-catalog-importer/internal/parser"
	"github.com/maltedev/parts-catalog-importer/internal/ratelimit"
	"github.com/maltedev/parts-catalog-importer/internal/resolver"
)

// ErrBlockedDocument marks a product page that came back as an interstitial
// with no article on it.
var ErrBlockedDocument = errors.New("page still looks like an interstitial")

type Options struct {
	Site    config.SiteConfig
	Workers int
	// MinDelay and MaxDelay bound the spacing between page loads across all
	// workers of the importer.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Retry flags product pages that still look like an interstitial after
	// the browser's own retry.
	Retry browser.RetryPolicy
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Site:     cfg.Site,
		Workers:  cfg.Import.Workers,
		MinDelay: cfg.Import.RequestDelay,
		MaxDelay: cfg.Import.RequestDelayMax,
		Retry:    browser.OptionsFromConfig(cfg.Browser).Retry,
	}
}

// Importer drives queries through resolve, fetch, extract, normalize and
// commit.
type Importer struct {
	launcher   browser.Launcher
	store      catalog.Store
	resolver   *resolver.Resolver
	extractor  *parser.Extractor
	normalizer *normalizer.Normalizer
	limiter    *ratelimit.AdaptiveRateLimiter
	retry      browser.RetryPolicy
	metrics    *metrics.Metrics
	workers    int
	logger     *slog.Logger
}

func New(launcher browser.Launcher, store catalog.Store, opts Options, m *metrics.Metrics, logger *slog.Logger) *Importer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	maxImages := opts.Site.MaxImages
	if maxImages < 1 {
		maxImages = normalizer.DefaultMaxImages
	}

	return &Importer{
		launcher:   launcher,
		store:      store,
		resolver:   resolver.New(opts.Site, logger),
		extractor:  parser.NewExtractor(opts.Site.BaseURL, maxImages),
		normalizer: normalizer.New(opts.Site.BaseURL, maxImages),
		limiter:    ratelimit.NewAdaptiveRateLimiter(opts.MinDelay, opts.MaxDelay),
		retry:      opts.Retry,
		metrics:    m,
		workers:    opts.Workers,
		logger:     logger.With("component", "importer"),
	}
}

// Extractor exposes the field extractor so callers can append selector
// strategies.
func (im *Importer) Extractor() *parser.Extractor {
	return im.extractor
}

func (im *Importer) newSource() *pageSource {
	return &pageSource{
		launcher: im.launcher,
		limiter:  im.limiter,
		metrics:  im.metrics,
		logger:   im.logger,
	}
}

func (im *Importer) closeSource(src *pageSource) {
	if err := src.Close(); err != nil {
		im.logger.Warn("failed to close browser session", "error", err)
	}
}

// Resolve returns the canonical product URL for query using a session of
// its own. found is false when the catalog has no page for query.
func (im *Importer) Resolve(ctx context.Context, query string) (string, bool, error) {
	src := im.newSource()
	defer im.closeSource(src)

	return im.resolver.Resolve(ctx, src, query)
}

// ImportProduct imports one query with a session that is closed before it
// returns.
func (im *Importer) ImportProduct(ctx context.Context, query string) *Outcome {
	src := im.newSource()
	defer im.closeSource(src)

	return im.importOne(ctx, src, query)
}

// ImportBatch imports queries in input order and never stops early. With
// one worker all queries share a single session; with more each worker owns
// its own. Sessions are opened on first use and closed once at the end.
func (im *Importer) ImportBatch(ctx context.Context, queries []string) *Summary {
	start := time.Now()
	outcomes := make([]*Outcome, len(queries))

	workers := im.workers
	if workers > len(queries) {
		workers = len(queries)
	}

	im.logger.Info("starting batch import", "queries", len(queries), "workers", workers)

	if workers <= 1 {
		src := im.newSource()
		defer im.closeSource(src)

		for i, q := range queries {
			outcomes[i] = im.importOne(ctx, src, q)
		}
	} else {
		im.runPool(ctx, workers, queries, outcomes)
	}

	summary := Summarize(outcomes)
	im.logger.Info("batch import finished",
		"total", summary.Total,
		"committed", len(summary.Committed),
		"skipped", len(summary.Skipped),
		"failed", len(summary.Failed),
		"duration", time.Since(start))

	return summary
}

func (im *Importer) runPool(ctx context.Context, workers int, queries []string, outcomes []*Outcome) {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range queries {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			src := im.newSource()
			defer im.closeSource(src)

			for i := range jobs {
				outcomes[i] = im.importOne(ctx, src, queries[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		im.logger.Warn("batch interrupted", "error", err)
	}

	// Queries never handed to a worker are reported, not dropped.
	for i, o := range outcomes {
		if o == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			outcomes[i] = failedOutcome(queries[i], err)
		}
	}
}

type attempt struct {
	out    *Outcome
	logger *slog.Logger
}

func (a *attempt) enter(s State) {
	a.logger.Debug("import state", "from", a.out.State, "to", s)
	a.out.State = s
}

func (a *attempt) fail(err error) *Outcome {
	a.enter(StateFailed)
	a.out.Status = StatusFailed
	a.out.Err = err
	a.out.Reason = catalog.Kind(err)
	a.out.Error = err.Error()
	return a.out
}

func (a *attempt) skip(existing *models.ProductRecord, err error) *Outcome {
	a.enter(StateSkippedDuplicate)
	a.out.Status = StatusSkipped
	a.out.Existing = existing
	a.out.Err = err
	a.out.Reason = catalog.KindConflict
	a.out.Error = err.Error()
	return a.out
}

func failedOutcome(query string, err error) *Outcome {
	return &Outcome{
		Query:  query,
		Status: StatusFailed,
		State:  StateFailed,
		Reason: catalog.Kind(err),
		Error:  err.Error(),
		Err:    err,
	}
}

func (im *Importer) importOne(ctx context.Context, src *pageSource, query string) *Outcome {
	start := time.Now()
	query = strings.TrimSpace(query)
	a := &attempt{
		out:    &Outcome{Query: query, State: StatePending},
		logger: im.logger.With("query", query),
	}

	out := im.advance(ctx, a, src, query)
	out.Duration = time.Since(start)
	im.metrics.ObserveImport(out.Status, out.Reason, out.Duration)

	switch out.Status {
	case StatusCommitted:
		a.logger.Info("product imported", "article", out.Record.Article, "url", out.URL, "duration", out.Duration)
	case StatusSkipped:
		a.logger.Info("product already in catalog", "reason", out.Reason)
	default:
		a.logger.Warn("import failed", "reason", out.Reason, "error", out.Error)
	}

	return out
}

func (im *Importer) advance(ctx context.Context, a *attempt, src *pageSource, query string) *Outcome {
	if query == "" {
		return a.fail(catalog.ErrEmptyQuery)
	}
	if err := ctx.Err(); err != nil {
		return a.fail(err)
	}

	existing, err := im.store.FindByQuery(ctx, query)
	switch {
	case err == nil:
		return a.skip(existing, &catalog.ConflictError{Article: existing.Article, Existing: existing})
	case !errors.Is(err, catalog.ErrProductNotFound):
		return a.fail(err)
	}

	a.enter(StateResolving)
	pageURL, found, err := im.resolver.Resolve(ctx, src, query)
	if err != nil {
		return a.fail(err)
	}
	if !found {
		return a.fail(fmt.Errorf("%w: %q", catalog.ErrNotFound, query))
	}
	a.out.URL = pageURL

	a.enter(StateFetching)
	html, err := src.Fetch(ctx, pageURL)
	if err != nil {
		return a.fail(err)
	}

	a.enter(StateExtracting)
	raw := im.extractor.ExtractPage(html, pageURL)
	if strings.TrimSpace(raw.Article) == "" && im.retry.Suspicious(html) {
		return a.fail(&catalog.FetchError{URL: pageURL, Attempts: browser.MaxAttempts, Err: ErrBlockedDocument})
	}

	a.enter(StateNormalizing)
	rec, err := im.normalizer.Normalize(raw)
	if err != nil {
		return a.fail(err)
	}

	created, err := im.store.Create(ctx, rec)
	if err != nil {
		var conflict *catalog.ConflictError
		if errors.As(err, &conflict) {
			return a.skip(conflict.Existing, err)
		}
		return a.fail(err)
	}

	a.enter(StateCommitted)
	a.out.Status = StatusCommitted
	a.out.Record = created
	return a.out
}
