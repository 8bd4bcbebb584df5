package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/parts-catalog-importer/internal/config"
)

// hideWebdriverScript runs before any page script on every navigation.
const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// Session is one live browser. Fetch calls on a session are serialized.
type Session interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

type Options struct {
	Engine         string
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	SettleDelay    time.Duration
	ExtraHeaders   map[string]string
	Retry          RetryPolicy
}

func DefaultOptions() *Options {
	return &Options{
		Engine:         config.EnginePlaywright,
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
		TimezoneID:     "Europe/Moscow",
		Locale:         "ru-RU",
		SettleDelay:    3 * time.Second,
		ExtraHeaders:   defaultHeaders("ru-RU,ru;q=0.9,en;q=0.8"),
		Retry:          DefaultRetryPolicy(),
	}
}

func OptionsFromConfig(cfg config.BrowserConfig) *Options {
	return &Options{
		Engine:         cfg.Engine,
		Headless:       cfg.Headless,
		Timeout:        cfg.Timeout,
		UserAgent:      cfg.UserAgent,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		AcceptLanguage: cfg.AcceptLanguage,
		TimezoneID:     cfg.TimezoneID,
		Locale:         cfg.Locale,
		ProxyServer:    cfg.ProxyServer,
		SettleDelay:    cfg.SettleDelay,
		ExtraHeaders:   defaultHeaders(cfg.AcceptLanguage),
		Retry: RetryPolicy{
			MinDocumentBytes: cfg.MinDocumentBytes,
			RedirectMarkers:  cfg.RedirectMarkers,
			RetryDelay:       cfg.RetryDelay,
		},
	}
}

func defaultHeaders(acceptLanguage string) map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": acceptLanguage,
		"DNT":             "1",
	}
}

// NewLauncher returns the launcher for opts.Engine.
func NewLauncher(opts *Options, logger *slog.Logger) (Launcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Engine {
	case config.EnginePlaywright, "":
		return &PlaywrightLauncher{opts: opts, logger: logger.With("component", "browser", "engine", "playwright")}, nil
	case config.EngineChromedp:
		return &ChromeLauncher{opts: opts, logger: logger.With("component", "browser", "engine", "chromedp")}, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
