package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"

	StorePostgres = "postgres"
	StoreFile     = "file"
)

type Config struct {
	Site     SiteConfig
	Browser  BrowserConfig
	Import   ImportConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type SiteConfig struct {
	BaseURL     string `envconfig:"SITE_BASE_URL" default:"https://snab-lift.ru"`
	SearchPath  string `envconfig:"SITE_SEARCH_PATH" default:"/rezultatyi-poiska.html"`
	SearchParam string `envconfig:"SITE_SEARCH_PARAM" default:"query"`
	MaxImages   int    `envconfig:"SITE_MAX_IMAGES" default:"10"`
}

type BrowserConfig struct {
	Engine           string        `envconfig:"BROWSER_ENGINE" default:"playwright"`
	Headless         bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	Timeout          time.Duration `envconfig:"BROWSER_TIMEOUT" default:"30s"`
	UserAgent        string        `envconfig:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
	ViewportWidth    int           `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight   int           `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"1080"`
	AcceptLanguage   string        `envconfig:"BROWSER_ACCEPT_LANGUAGE" default:"ru-RU,ru;q=0.9,en;q=0.8"`
	TimezoneID       string        `envconfig:"BROWSER_TIMEZONE" default:"Europe/Moscow"`
	Locale           string        `envconfig:"BROWSER_LOCALE" default:"ru-RU"`
	SettleDelay      time.Duration `envconfig:"BROWSER_SETTLE_DELAY" default:"3s"`
	MinDocumentBytes int           `envconfig:"BROWSER_MIN_DOCUMENT_BYTES" default:"1000"`
	RedirectMarkers  []string      `envconfig:"BROWSER_REDIRECT_MARKERS" default:"set_cookie"`
	RetryDelay       time.Duration `envconfig:"BROWSER_RETRY_DELAY" default:"5s"`
	ProxyServer      string        `envconfig:"BROWSER_PROXY"`
}

type ImportConfig struct {
	Workers         int           `envconfig:"IMPORT_WORKERS" default:"1"`
	RequestDelay    time.Duration `envconfig:"IMPORT_REQUEST_DELAY" default:"2s"`
	RequestDelayMax time.Duration `envconfig:"IMPORT_REQUEST_DELAY_MAX" default:"2s"`
	Store           string        `envconfig:"IMPORT_STORE" default:"postgres"`
	StoreFile       string        `envconfig:"IMPORT_STORE_FILE" default:"catalog.json"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME" default:"parts_catalog"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Stream   string `envconfig:"REDIS_STREAM" default:"stream:catalog_products"`

	ImportStream  string        `envconfig:"REDIS_IMPORT_STREAM" default:"stream:catalog_import_requests"`
	ConsumerGroup string        `envconfig:"REDIS_CONSUMER_GROUP" default:"catalog-importer"`
	ConsumerName  string        `envconfig:"REDIS_CONSUMER_NAME"`
	ReadBlock     time.Duration `envconfig:"REDIS_READ_BLOCK" default:"5s"`
}

type ServerConfig struct {
	Port            int           `envconfig:"SERVER_PORT" default:"8085"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10m"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

type LoggingConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SITE_BASE_URL must be an absolute URL, got %q", c.Site.BaseURL)
	}

	if c.Site.MaxImages < 1 {
		return fmt.Errorf("SITE_MAX_IMAGES must be at least 1")
	}

	switch c.Browser.Engine {
	case EnginePlaywright, EngineChromedp:
	default:
		return fmt.Errorf("unknown BROWSER_ENGINE %q", c.Browser.Engine)
	}

	if c.Browser.MinDocumentBytes < 0 {
		return fmt.Errorf("BROWSER_MIN_DOCUMENT_BYTES cannot be negative")
	}

	if c.Import.Workers < 1 {
		return fmt.Errorf("IMPORT_WORKERS must be at least 1")
	}

	if c.Import.RequestDelay > c.Import.RequestDelayMax {
		return fmt.Errorf("IMPORT_REQUEST_DELAY cannot be greater than IMPORT_REQUEST_DELAY_MAX")
	}

	switch c.Import.Store {
	case StorePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database host and name are required")
		}
	case StoreFile:
	default:
		return fmt.Errorf("unknown IMPORT_STORE %q", c.Import.Store)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// SearchURL is the site's search endpoint without the query parameter.
func (s SiteConfig) SearchURL() string {
	return s.BaseURL + s.SearchPath
}
