package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://snab-lift.ru", cfg.Site.BaseURL)
	assert.Equal(t, "https://snab-lift.ru/rezultatyi-poiska.html", cfg.Site.SearchURL())
	assert.Equal(t, 10, cfg.Site.MaxImages)
	assert.Equal(t, EnginePlaywright, cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1000, cfg.Browser.MinDocumentBytes)
	assert.Equal(t, []string{"set_cookie"}, cfg.Browser.RedirectMarkers)
	assert.Equal(t, 5*time.Second, cfg.Browser.RetryDelay)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 2*time.Second, cfg.Import.RequestDelay)
	assert.Equal(t, 1, cfg.Import.Workers)
	assert.Equal(t, StorePostgres, cfg.Import.Store)
	assert.Equal(t, "stream:catalog_import_requests", cfg.Redis.ImportStream)
	assert.Equal(t, "catalog-importer", cfg.Redis.ConsumerGroup)
	assert.Equal(t, 5*time.Second, cfg.Redis.ReadBlock)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SITE_BASE_URL", "https://site.example")
	t.Setenv("BROWSER_ENGINE", "chromedp")
	t.Setenv("BROWSER_REDIRECT_MARKERS", "set_cookie,challenge")
	t.Setenv("IMPORT_WORKERS", "3")
	t.Setenv("IMPORT_STORE", "file")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://site.example", cfg.Site.BaseURL)
	assert.Equal(t, EngineChromedp, cfg.Browser.Engine)
	assert.Equal(t, []string{"set_cookie", "challenge"}, cfg.Browser.RedirectMarkers)
	assert.Equal(t, 3, cfg.Import.Workers)
	assert.Equal(t, StoreFile, cfg.Import.Store)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		t.Helper()
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Relative base URL", func(c *Config) { c.Site.BaseURL = "/catalog" }},
		{"No images", func(c *Config) { c.Site.MaxImages = 0 }},
		{"Unknown engine", func(c *Config) { c.Browser.Engine = "selenium" }},
		{"No workers", func(c *Config) { c.Import.Workers = 0 }},
		{"Delay range inverted", func(c *Config) { c.Import.RequestDelay = 5 * time.Second }},
		{"Unknown store", func(c *Config) { c.Import.Store = "sqlite" }},
		{"Bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
