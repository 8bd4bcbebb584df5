package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/config"
	"github.com/maltedev/parts-catalog-importer/pkg/logger"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "ru-RU", opts.Locale)
	assert.Equal(t, 1000, opts.Retry.MinDocumentBytes)
	assert.Equal(t, []string{"set_cookie"}, opts.Retry.RedirectMarkers)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{
		Engine:           config.EngineChromedp,
		Timeout:          10 * time.Second,
		AcceptLanguage:   "en-US",
		MinDocumentBytes: 500,
		RedirectMarkers:  []string{"challenge"},
		RetryDelay:       time.Second,
	})

	assert.Equal(t, config.EngineChromedp, opts.Engine)
	assert.Equal(t, "en-US", opts.ExtraHeaders["Accept-Language"])
	assert.Equal(t, RetryPolicy{MinDocumentBytes: 500, RedirectMarkers: []string{"challenge"}, RetryDelay: time.Second}, opts.Retry)
}

func TestNewLauncher(t *testing.T) {
	l, err := NewLauncher(&Options{Engine: config.EnginePlaywright}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &PlaywrightLauncher{}, l)

	l, err = NewLauncher(&Options{Engine: config.EngineChromedp}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &ChromeLauncher{}, l)

	_, err = NewLauncher(&Options{Engine: "selenium"}, logger.Discard())
	assert.Error(t, err)
}

func TestRetryPolicySuspicious(t *testing.T) {
	policy := RetryPolicy{MinDocumentBytes: 100, RedirectMarkers: []string{"set_cookie"}}
	big := strings.Repeat("x", 200)

	tests := []struct {
		name     string
		html     string
		expected bool
	}{
		{"Empty document", "", true},
		{"Too small", "<html></html>", true},
		{"Redirect marker", big + "<script>set_cookie()</script>", true},
		{"Real page", big, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Suspicious(tt.html))
		})
	}
}

func TestFetchWithRetry(t *testing.T) {
	policy := RetryPolicy{MinDocumentBytes: 10, RedirectMarkers: []string{"set_cookie"}, RetryDelay: time.Millisecond}
	good := "<html><h1>Door roller</h1></html>"
	ctx := context.Background()

	t.Run("First load is good", func(t *testing.T) {
		calls := 0
		html, err := fetchWithRetry(ctx, policy, logger.Discard(), "https://x", func(context.Context) (string, error) {
			calls++
			return good, nil
		})
		require.NoError(t, err)
		assert.Equal(t, good, html)
		assert.Equal(t, 1, calls)
	})

	t.Run("Interstitial then content", func(t *testing.T) {
		pages := []string{"<script>set_cookie('a')</script>", good}
		calls := 0
		html, err := fetchWithRetry(ctx, policy, logger.Discard(), "https://x", func(context.Context) (string, error) {
			calls++
			return pages[calls-1], nil
		})
		require.NoError(t, err)
		assert.Equal(t, good, html)
		assert.Equal(t, 2, calls)
	})

	t.Run("Still suspicious after retry", func(t *testing.T) {
		calls := 0
		html, err := fetchWithRetry(ctx, policy, logger.Discard(), "https://x", func(context.Context) (string, error) {
			calls++
			return "tiny", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "tiny", html)
		assert.Equal(t, 2, calls, "retries exactly once")
	})

	t.Run("Load error twice", func(t *testing.T) {
		boom := errors.New("net::ERR_CONNECTION_RESET")
		_, err := fetchWithRetry(ctx, policy, logger.Discard(), "https://x", func(context.Context) (string, error) {
			return "", boom
		})
		var fetchErr *catalog.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, 2, fetchErr.Attempts)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, catalog.KindFetch, catalog.Kind(err))
	})

	t.Run("Cancelled during retry delay", func(t *testing.T) {
		slow := policy
		slow.RetryDelay = time.Hour
		cctx, cancel := context.WithCancel(ctx)

		_, err := fetchWithRetry(cctx, slow, logger.Discard(), "https://x", func(context.Context) (string, error) {
			cancel()
			return "tiny", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, catalog.KindCanceled, catalog.Kind(err))
	})
}
