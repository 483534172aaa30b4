package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"currency_go/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://localhost:9000/
ui:
  locale: en-US
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.UI.Locale != "en-US" {
		t.Errorf("Expected locale en-US, got %s", cfg.UI.Locale)
	}
	if cfg.UI.DefaultFrom != "EUR" || cfg.UI.DefaultTo != "SEK" {
		t.Errorf("Expected default pair EUR->SEK, got %s->%s", cfg.UI.DefaultFrom, cfg.UI.DefaultTo)
	}
	if cfg.Timeout() != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", cfg.Timeout())
	}
	if got := cfg.RatesURL(); got != "http://localhost:9000/rates" {
		t.Errorf("Unexpected rates URL: %s", got)
	}
	if got := cfg.FlagsURL(); got != "http://localhost:9000/image" {
		t.Errorf("Unexpected flags URL: %s", got)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CURRENCY_BACKEND_URL", "https://rates.example.com")
	t.Setenv("CURRENCY_SERVER_ADDR", ":9999")
	t.Setenv("CURRENCY_FLAGS_ENABLED", "false")

	cfg, err := LoadConfig(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Backend.BaseURL != "https://rates.example.com" {
		t.Errorf("Expected env base URL, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Expected env addr, got %s", cfg.Server.Addr)
	}
	if cfg.Flags.Enabled {
		t.Error("Expected flags disabled by env")
	}
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "backend:\n  timeout_sec: -1\n"))

	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "backend.timeout_sec" {
		t.Errorf("Expected field backend.timeout_sec, got %s", cfgErr.Field)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("BadURL", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend.BaseURL = "ftp://nope"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for non-http URL")
		}
	})

	t.Run("BadCurrency", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.UI.DefaultTo = "SWEDEN"
		err := cfg.Validate()
		if !errors.Is(err, domain.ErrInvalidCurrency) {
			t.Errorf("Expected ErrInvalidCurrency, got %v", err)
		}
	})

	t.Run("FlagSizeIgnoredWhenDisabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Flags.Enabled = false
		cfg.Flags.SizePx = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})
}
