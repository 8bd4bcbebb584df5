package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeLauncher starts Chrome through the DevTools protocol. It needs a
// locally installed Chrome or Chromium instead of the playwright driver.
type ChromeLauncher struct {
	opts   *Options
	logger *slog.Logger
}

func (l *ChromeLauncher) Open(ctx context.Context) (Session, error) {
	opts := l.opts

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	// the browser outlives ctx; it is torn down by Close
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	headers := make(network.Headers, len(opts.ExtraHeaders))
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}

	err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	if err := ctx.Err(); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	l.logger.Debug("browser session opened", "headless", opts.Headless)
	return &ChromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		opts:          opts,
		logger:        l.logger,
	}, nil
}

// ChromeSession drives one Chrome tab.
type ChromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	opts          *Options
	logger        *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *ChromeSession) Fetch(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("browser session is closed")
	}

	return fetchWithRetry(ctx, s.opts.Retry, s.logger, url, s.load(url))
}

func (s *ChromeSession) load(url string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		runCtx, cancel := context.WithTimeout(s.browserCtx, s.opts.Timeout+s.opts.SettleDelay)
		defer cancel()

		var html string
		err := chromedp.Run(runCtx,
			chromedp.Navigate(url),
			chromedp.Sleep(s.opts.SettleDelay),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return "", fmt.Errorf("failed to load page: %w", err)
		}
		return html, nil
	}
}

func (s *ChromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// cancelling the browser context closes the tab and the process
	s.browserCancel()
	s.allocCancel()

	s.logger.Debug("browser session closed")
	return nil
}
