package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/parts-catalog-importer/internal/browser"
	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/metrics"
	"github.com/maltedev/parts-catalog-importer/internal/ratelimit"
)

// pageSource opens its browser session on the first Fetch and spaces page
// loads through the shared limiter. Fetches on one source are serialized.
type pageSource struct {
	launcher browser.Launcher
	limiter  *ratelimit.AdaptiveRateLimiter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	session browser.Session
	closed  bool
}

func (s *pageSource) Fetch(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errors.New("page source closed")
	}

	if s.session == nil {
		sess, err := s.launcher.Open(ctx)
		if err != nil {
			return "", &catalog.FetchError{URL: url, Err: fmt.Errorf("failed to open browser session: %w", err)}
		}
		s.logger.Debug("browser session opened")
		s.session = sess
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	html, err := s.session.Fetch(ctx, url)
	s.metrics.ObserveFetch(err, time.Since(start))

	if err != nil {
		s.limiter.RecordError()
		var fetchErr *catalog.FetchError
		if !errors.As(err, &fetchErr) {
			err = &catalog.FetchError{URL: url, Attempts: 1, Err: err}
		}
		return "", err
	}

	s.limiter.RecordSuccess()
	return html, nil
}

// Close releases the session if one was opened. Safe to call more than once.
func (s *pageSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	s.logger.Debug("browser session closed")
	return err
}
