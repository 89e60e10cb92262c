package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"coin_swap/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds every application setting.
// After LoadConfig parses the file, environment variables override sensitive or deploy-specific values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Catalog struct {
			RestURL    string `yaml:"rest_url"`
			Page       int    `yaml:"page"`
			PerPage    int    `yaml:"per_page"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"catalog"`
		Stream struct {
			WSURL               string `yaml:"ws_url"`
			Quote               string `yaml:"quote"`
			MaxRetries          int    `yaml:"max_retries"`
			HandshakeTimeoutSec int    `yaml:"handshake_timeout_sec"`
			ReadTimeoutSec      int    `yaml:"read_timeout_sec"`
		} `yaml:"stream"`
	} `yaml:"api"`

	Swap struct {
		DefaultAmount    decimal.Decimal `yaml:"default_amount"`
		PageSize         int             `yaml:"page_size"`
		PickerGap        float64         `yaml:"picker_gap"`
		PickerHeight     float64         `yaml:"picker_height"`
		PickerItemHeight float64         `yaml:"picker_item_height"`
		InboxSize        int             `yaml:"inbox_size"`
		ForceDecimals    bool            `yaml:"force_decimals"`
	} `yaml:"swap"`

	Storage struct {
		Path string `yaml:"path"` // Empty: user config dir
	} `yaml:"storage"`

	Icons struct {
		Enabled     bool   `yaml:"enabled"`
		Dir         string `yaml:"dir"` // Empty: user config dir
		Size        int    `yaml:"size"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"icons"`

	Logging struct {
		Level  string `yaml:"level"`
		Dir    string `yaml:"dir"`
		Stdout bool   `yaml:"stdout"`
	} `yaml:"logging"`

	Debug struct {
		PprofAddr string `yaml:"pprof_addr"` // Empty: disabled
	} `yaml:"debug"`
}

// DefaultConfig returns the configuration used when a field is left empty in the file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "Coin Swap"
	cfg.API.Catalog.RestURL = "https://api.coingecko.com/api/v3"
	cfg.API.Catalog.Page = 1
	cfg.API.Catalog.PerPage = 100
	cfg.API.Catalog.TimeoutSec = 10
	cfg.API.Stream.WSURL = "wss://stream.binance.com:9443/ws"
	cfg.API.Stream.Quote = domain.DefaultQuote
	cfg.API.Stream.MaxRetries = 5
	cfg.API.Stream.HandshakeTimeoutSec = 10
	cfg.API.Stream.ReadTimeoutSec = 180
	cfg.Swap.DefaultAmount = decimal.NewFromInt(1)
	cfg.Swap.PageSize = 20
	cfg.Swap.PickerGap = 8
	cfg.Swap.PickerHeight = 240
	cfg.Swap.PickerItemHeight = 40
	cfg.Swap.InboxSize = 1024
	cfg.Swap.ForceDecimals = true
	cfg.Icons.Enabled = true
	cfg.Icons.Size = 24
	cfg.Icons.Concurrency = 5
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig reads and parses the configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	stream := c.API.Stream
	if !strings.HasPrefix(stream.WSURL, "ws://") && !strings.HasPrefix(stream.WSURL, "wss://") {
		return &domain.ConfigError{Field: "api.stream.ws_url", Err: fmt.Errorf("invalid websocket url %q", stream.WSURL)}
	}
	if strings.TrimSpace(stream.Quote) == "" {
		return &domain.ConfigError{Field: "api.stream.quote", Err: errors.New("quote is required")}
	}
	if stream.MaxRetries < 0 {
		return &domain.ConfigError{Field: "api.stream.max_retries", Err: errors.New("must not be negative")}
	}

	catalog := c.API.Catalog
	if !strings.HasPrefix(catalog.RestURL, "http://") && !strings.HasPrefix(catalog.RestURL, "https://") {
		return &domain.ConfigError{Field: "api.catalog.rest_url", Err: fmt.Errorf("invalid url %q", catalog.RestURL)}
	}
	if catalog.Page < 1 || catalog.PerPage < 1 || catalog.PerPage > 250 {
		return &domain.ConfigError{Field: "api.catalog.per_page", Err: errors.New("page must be >= 1 and per_page in 1..250")}
	}

	if c.Swap.DefaultAmount.IsNegative() {
		return &domain.ConfigError{Field: "swap.default_amount", Err: domain.ErrInvalidAmount}
	}
	if c.Swap.PageSize < 1 {
		return &domain.ConfigError{Field: "swap.page_size", Err: errors.New("page size must be positive")}
	}
	if c.Swap.InboxSize < 1 {
		return &domain.ConfigError{Field: "swap.inbox_size", Err: errors.New("inbox size must be positive")}
	}

	return nil
}

// CatalogTimeout returns the catalog request timeout
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.API.Catalog.TimeoutSec) * time.Second
}

// HandshakeTimeout returns the websocket handshake timeout
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.API.Stream.HandshakeTimeoutSec) * time.Second
}

// ReadTimeout returns the websocket read deadline
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Stream.ReadTimeoutSec) * time.Second
}

// overrideWithEnv overwrites settings when the matching environment variable is set.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("COINSWAP_CATALOG_URL"); v != "" {
		cfg.API.Catalog.RestURL = v
	}
	if v := os.Getenv("COINSWAP_STREAM_URL"); v != "" {
		cfg.API.Stream.WSURL = v
	}
	if v := os.Getenv("COINSWAP_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("COINSWAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COINSWAP_PPROF_ADDR"); v != "" {
		cfg.Debug.PprofAddr = v
	}
	if v := os.Getenv("COINSWAP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Stream.MaxRetries = n
		}
	}
}
