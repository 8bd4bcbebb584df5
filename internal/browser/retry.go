package browser

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
)

// RetryPolicy describes when a loaded document looks like the site's
// cookie-setting interstitial instead of real content. The thresholds are
// empirical and only improve the odds; a page that still looks blocked after
// the retry is returned as is.
type RetryPolicy struct {
	MinDocumentBytes int
	RedirectMarkers  []string
	RetryDelay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MinDocumentBytes: 1000,
		RedirectMarkers:  []string{"set_cookie"},
		RetryDelay:       5 * time.Second,
	}
}

// Suspicious reports whether html is too short or carries a redirect marker.
func (p RetryPolicy) Suspicious(html string) bool {
	if len(html) < p.MinDocumentBytes {
		return true
	}
	for _, marker := range p.RedirectMarkers {
		if marker != "" && strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// MaxAttempts bounds page loads per fetch, the first one included.
const MaxAttempts = 2

// fetchWithRetry runs load at most twice. The second attempt happens after
// RetryDelay when the first one failed or returned a suspicious document.
func fetchWithRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, url string, load func(ctx context.Context) (string, error)) (string, error) {
	var (
		html    string
		lastErr error
	)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			logger.Info("retrying page load", "url", url, "attempt", attempt, "delay", policy.RetryDelay)
			if err := sleepCtx(ctx, policy.RetryDelay); err != nil {
				return "", &catalog.FetchError{URL: url, Attempts: attempt - 1, Err: err}
			}
		}

		html, lastErr = load(ctx)
		if lastErr != nil {
			logger.Warn("page load failed", "url", url, "attempt", attempt, "error", lastErr)
			if ctx.Err() != nil {
				return "", &catalog.FetchError{URL: url, Attempts: attempt, Err: ctx.Err()}
			}
			continue
		}

		if !policy.Suspicious(html) {
			return html, nil
		}
		logger.Debug("document looks like an interstitial", "url", url, "attempt", attempt, "bytes", len(html))
	}

	if lastErr != nil {
		return "", &catalog.FetchError{URL: url, Attempts: MaxAttempts, Err: lastErr}
	}

	logger.Warn("returning suspicious document after retry", "url", url, "bytes", len(html))
	return html, nil
}
