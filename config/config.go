package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where LoadConfig looks when no -config flag is given.
const DefaultConfigPath = "config/config.yml"

// DefaultStartTimeMs is 2019-09-10T00:00:00Z, the beginning of available
// funding-rate history. Markets with no persisted records are crawled from
// this instant.
const DefaultStartTimeMs int64 = 1568073600000

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Source      SourceConfig      `yaml:"source"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CrawlerConfig struct {
	StartTimeMs   int64         `yaml:"start_time_ms"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig shapes the per-market retry policy. MaxAttempts 0 means retry
// forever; with BaseDelay == MaxDelay the delay is fixed.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Binance ExchangeSourceConfig `yaml:"binance"`
	Bitmex  ExchangeSourceConfig `yaml:"bitmex"`
	Huobi   ExchangeSourceConfig `yaml:"huobi"`
	Okex    ExchangeSourceConfig `yaml:"okex"`
}

type ExchangeSourceConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	URL            string               `yaml:"url"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// Exchange returns the source block for the named exchange; ok is false for
// unknown names.
func (s *SourceConfig) Exchange(name string) (ExchangeSourceConfig, bool) {
	switch strings.ToLower(name) {
	case "binance":
		return s.Binance, true
	case "bitmex":
		return s.Bitmex, true
	case "huobi":
		return s.Huobi, true
	case "okex":
		return s.Okex, true
	}
	return ExchangeSourceConfig{}, false
}

type StorageConfig struct {
	Data    DataConfig    `yaml:"data"`
	S3      S3Config      `yaml:"s3"`
	Archive ArchiveConfig `yaml:"archive"`
}

// DataConfig locates the local checkpoint tree: one JSON file per
// (exchange, pair) under Directory.
type DataConfig struct {
	Directory string `yaml:"directory"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ArchiveConfig controls the optional parquet mirror of merged sequences.
// The archive shares the S3 credentials block above.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Namespace string        `yaml:"namespace"`
	Region    string        `yaml:"region"`
	Interval  time.Duration `yaml:"interval"`
}

// DashboardConfig controls the built-in progress dashboard. Address accepts
// host:port or a bare port (":9090"); unset fields get sensible defaults when
// the server starts.
type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	SampleHistory   int           `yaml:"sample_history"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

// envConfigPaths maps deployment environments to their configuration files.
// LoadConfig switches to one of these when the caller passes the default
// path and APP_ENV selects an environment with a dedicated file.
var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override storage settings from environment variables if available
	if v := os.Getenv("FUNDINGFLOW_DATA_DIR"); v != "" {
		config.Storage.Data.Directory = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled || config.Storage.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	config.Storage.Archive.Bucket = strings.TrimSpace(config.Storage.Archive.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}

	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Crawler.StartTimeMs == 0 {
		cfg.Crawler.StartTimeMs = DefaultStartTimeMs
	}
	if cfg.Crawler.StartTimeMs < 0 {
		return fmt.Errorf("crawler.start_time_ms must not be negative")
	}
	if cfg.Crawler.MaxConcurrent < 0 {
		return fmt.Errorf("crawler.max_concurrent must not be negative")
	}

	if cfg.Crawler.Retry.BaseDelay == 0 {
		cfg.Crawler.Retry.BaseDelay = 5 * time.Second
	}
	if cfg.Crawler.Retry.BaseDelay < 0 {
		return fmt.Errorf("crawler.retry.base_delay must be greater than 0")
	}
	if cfg.Crawler.Retry.MaxDelay == 0 {
		cfg.Crawler.Retry.MaxDelay = cfg.Crawler.Retry.BaseDelay
	}
	if cfg.Crawler.Retry.MaxDelay < cfg.Crawler.Retry.BaseDelay {
		return fmt.Errorf("crawler.retry.max_delay must not be below base_delay")
	}
	if cfg.Crawler.Retry.BackoffMultiplier == 0 {
		cfg.Crawler.Retry.BackoffMultiplier = 1
	}
	if cfg.Crawler.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("crawler.retry.backoff_multiplier must be at least 1")
	}
	if cfg.Crawler.Retry.MaxAttempts < 0 {
		return fmt.Errorf("crawler.retry.max_attempts must not be negative (0 retries forever)")
	}

	for _, src := range []struct {
		name string
		cfg  ExchangeSourceConfig
	}{
		{"binance", cfg.Source.Binance},
		{"bitmex", cfg.Source.Bitmex},
		{"huobi", cfg.Source.Huobi},
		{"okex", cfg.Source.Okex},
	} {
		if src.cfg.Enabled && src.cfg.URL == "" {
			return fmt.Errorf("source.%s.url is required when the exchange is enabled", src.name)
		}
	}

	if cfg.Storage.Data.Directory == "" {
		cfg.Storage.Data.Directory = "data"
	}

	if cfg.Storage.S3.Enabled || cfg.Storage.Archive.Enabled {
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
	}
	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}
	if cfg.Storage.Archive.Enabled {
		if cfg.Storage.Archive.Bucket == "" {
			return fmt.Errorf("storage.archive.bucket is required when the archive is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.Archive.Bucket) {
			return fmt.Errorf("storage.archive.bucket '%s' is invalid", cfg.Storage.Archive.Bucket)
		}
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Namespace == "" {
			cfg.Metrics.CloudWatch.Namespace = "Fundingflow"
		}
		if cfg.Metrics.CloudWatch.Interval <= 0 {
			cfg.Metrics.CloudWatch.Interval = time.Minute
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		if IsProductionLike(getAppEnvironment()) {
			cfg.Logging.Format = "json"
		} else {
			cfg.Logging.Format = "text"
		}
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
