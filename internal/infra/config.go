package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"currency_go/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string sent to the rates backend
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds every application setting.
// Values loaded by LoadConfig are overridden by CURRENCY_* environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		DataDir string `yaml:"data_dir"` // Empty means the OS user config dir
	} `yaml:"app"`

	Backend struct {
		BaseURL          string `yaml:"base_url"`
		RatesPath        string `yaml:"rates_path"`
		FlagsPath        string `yaml:"flags_path"`
		TimeoutSec       int    `yaml:"timeout_sec"`
		CheckIntervalSec int    `yaml:"check_interval_sec"`
	} `yaml:"backend"`

	Flags struct {
		Enabled bool `yaml:"enabled"`
		SizePx  int  `yaml:"size_px"`
	} `yaml:"flags"`

	UI struct {
		Locale      string `yaml:"locale"`
		DefaultFrom string `yaml:"default_from"`
		DefaultTo   string `yaml:"default_to"`
	} `yaml:"ui"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used when a field is left empty
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "currency_go"
	cfg.Backend.BaseURL = "https://convbackend.azurewebsites.net"
	cfg.Backend.RatesPath = "/rates"
	cfg.Backend.FlagsPath = "/image"
	cfg.Backend.TimeoutSec = 10
	cfg.Backend.CheckIntervalSec = 600
	cfg.Flags.Enabled = true
	cfg.Flags.SizePx = 48
	cfg.UI.Locale = "sv-SE"
	cfg.UI.DefaultFrom = domain.AnchorCurrency
	cfg.UI.DefaultTo = "SEK"
	cfg.Server.Addr = "localhost:8080"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig reads and parses the config file on top of DefaultConfig.
// A .env file next to the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
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
	if !hasPrefix(c.Backend.BaseURL, "http://") && !hasPrefix(c.Backend.BaseURL, "https://") {
		return &domain.ConfigError{Field: "backend.base_url", Err: fmt.Errorf("not an http(s) URL: %q", c.Backend.BaseURL)}
	}
	if !hasPrefix(c.Backend.RatesPath, "/") {
		return &domain.ConfigError{Field: "backend.rates_path", Err: errors.New("must start with /")}
	}
	if c.Flags.Enabled && !hasPrefix(c.Backend.FlagsPath, "/") {
		return &domain.ConfigError{Field: "backend.flags_path", Err: errors.New("must start with /")}
	}
	if c.Backend.TimeoutSec <= 0 {
		return &domain.ConfigError{Field: "backend.timeout_sec", Err: errors.New("must be positive")}
	}
	if c.Backend.CheckIntervalSec <= 0 {
		return &domain.ConfigError{Field: "backend.check_interval_sec", Err: errors.New("must be positive")}
	}
	if c.Flags.Enabled && (c.Flags.SizePx <= 0 || c.Flags.SizePx > 512) {
		return &domain.ConfigError{Field: "flags.size_px", Err: errors.New("must be within 1..512")}
	}
	if len(c.UI.DefaultFrom) != 3 || len(c.UI.DefaultTo) != 3 {
		return &domain.ConfigError{Field: "ui.default_from/default_to", Err: domain.ErrInvalidCurrency}
	}
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("must not be empty")}
	}
	return nil
}

// Timeout returns the HTTP timeout for backend requests
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}

// CheckInterval returns how often the refresh loop re-checks freshness
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Backend.CheckIntervalSec) * time.Second
}

// RatesURL returns the absolute rates endpoint
func (c *Config) RatesURL() string {
	return strings.TrimRight(c.Backend.BaseURL, "/") + c.Backend.RatesPath
}

// FlagsURL returns the absolute flag image endpoint
func (c *Config) FlagsURL() string {
	return strings.TrimRight(c.Backend.BaseURL, "/") + c.Backend.FlagsPath
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces config values with environment variables when set
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("CURRENCY_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("CURRENCY_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CURRENCY_LOCALE"); v != "" {
		cfg.UI.Locale = v
	}
	if v := os.Getenv("CURRENCY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CURRENCY_DATA_DIR"); v != "" {
		cfg.App.DataDir = v
	}
	if v := os.Getenv("CURRENCY_FLAGS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Flags.Enabled = enabled
		}
	}
}
