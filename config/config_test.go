package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `fundingflow:
  name: "TestApp"
  version: "1.0"
source:
  binance:
    enabled: true
    url: "https://fapi.binance.com"
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Fundingflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Fundingflow.Name)
	}
	if !cfg.Source.Binance.Enabled {
		t.Errorf("binance source should be enabled")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Crawler.StartTimeMs != DefaultStartTimeMs {
		t.Errorf("start_time_ms default = %d, want %d", cfg.Crawler.StartTimeMs, DefaultStartTimeMs)
	}
	if cfg.Crawler.Retry.BaseDelay != 5*time.Second {
		t.Errorf("retry.base_delay default = %v, want 5s", cfg.Crawler.Retry.BaseDelay)
	}
	if cfg.Crawler.Retry.MaxDelay != cfg.Crawler.Retry.BaseDelay {
		t.Errorf("retry.max_delay should default to base_delay, got %v", cfg.Crawler.Retry.MaxDelay)
	}
	if cfg.Crawler.Retry.MaxAttempts != 0 {
		t.Errorf("retry.max_attempts should default to 0 (retry forever), got %d", cfg.Crawler.Retry.MaxAttempts)
	}
	if cfg.Storage.Data.Directory != "data" {
		t.Errorf("data directory default = %q, want data", cfg.Storage.Data.Directory)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Output != "stdout" {
		t.Errorf("logging defaults wrong: %+v", cfg.Logging)
	}
}

func TestLoadConfigEnabledSourceNeedsURL(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeTempConfig(t, `fundingflow:
  name: "TestApp"
  version: "1.0"
source:
  huobi:
    enabled: true
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for enabled source without url")
	}
}

func TestLoadConfigDataDirOverride(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("FUNDINGFLOW_DATA_DIR", "/var/lib/fundingflow")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.Data.Directory != "/var/lib/fundingflow" {
		t.Errorf("env override not applied: %s", cfg.Storage.Data.Directory)
	}
}

func TestSourceExchangeLookup(t *testing.T) {
	src := SourceConfig{
		Huobi: ExchangeSourceConfig{URL: "https://api.hbdm.com"},
	}
	got, ok := src.Exchange("Huobi")
	if !ok || got.URL != "https://api.hbdm.com" {
		t.Errorf("Exchange(Huobi) = %+v, %v", got, ok)
	}
	if _, ok := src.Exchange("kraken"); ok {
		t.Errorf("unknown exchange should not resolve")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike("production") || !IsProductionLike("staging") {
		t.Errorf("production and staging are production-like")
	}
	if IsProductionLike("development") {
		t.Errorf("development is not production-like")
	}
}
