package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
)

type PlaywrightLauncher struct {
	opts   *Options
	logger *slog.Logger
}

func (l *PlaywrightLauncher) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := l.opts

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=" + strconv.Itoa(opts.ViewportWidth) + "," + strconv.Itoa(opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to launch browser: %w", err), pw.Stop())
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	})
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("failed to create browser context: %w", err), browser.Close(), pw.Stop())
	}

	s := &PlaywrightSession{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  l.logger,
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(hideWebdriverScript)}); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to add init script: %w", err), s.Close())
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create new page: %w", err), s.Close())
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	s.page = page

	l.logger.Debug("browser session opened", "headless", opts.Headless)
	return s, nil
}

// PlaywrightSession drives one Chromium page.
type PlaywrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    *Options
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *PlaywrightSession) Fetch(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("browser session is closed")
	}

	return fetchWithRetry(ctx, s.opts.Retry, s.logger, url, s.load(url))
}

func (s *PlaywrightSession) load(url string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(s.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			return "", fmt.Errorf("failed to navigate: %w", err)
		}

		// the cookie redirect fires from page script after DOMContentLoaded
		if err := sleepCtx(ctx, s.opts.SettleDelay); err != nil {
			return "", err
		}

		content, err := s.page.Content()
		if err != nil {
			return "", fmt.Errorf("failed to get page content: %w", err)
		}
		return content, nil
	}
}

func (s *PlaywrightSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.context != nil {
		if cerr := s.context.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close context: %w", cerr))
		}
	}
	if s.browser != nil {
		if cerr := s.browser.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close browser: %w", cerr))
		}
	}
	if s.pw != nil {
		if cerr := s.pw.Stop(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to stop playwright: %w", cerr))
		}
	}

	s.logger.Debug("browser session closed")
	return err
}
