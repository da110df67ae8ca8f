package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the entry points look for a configuration file.
const DefaultPath = "config/config.yml"

type Config struct {
	Histflow HistflowConfig `yaml:"histflow"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Reader   ReaderConfig   `yaml:"reader"`
	Cache    CacheConfig    `yaml:"cache"`
	Batch    BatchConfig    `yaml:"batch"`
	Source   SourceConfig   `yaml:"source"`
	Writer   WriterConfig   `yaml:"writer"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type HistflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FetchConfig struct {
	OutputDir  string `yaml:"output_dir"`
	MaxWorkers int    `yaml:"max_workers"`
	Interval   string `yaml:"interval"`
}

type ReaderConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	Retry     RetryConfig     `yaml:"retry"`
	Jitter    JitterConfig    `yaml:"jitter"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

// JitterConfig bounds the random pause between paginated calls. A zero Max
// disables the pause.
type JitterConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// RateLimitConfig drives an optional token bucket per exchange client.
// RequestsPerSecond of zero turns it off.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

const (
	PartialRefetch = "refetch"
	PartialExtend  = "extend"
)

// CacheConfig decides what happens when an artifact covers only part of a
// requested range: refetch everything or fetch just the missing pieces.
type CacheConfig struct {
	Partial string `yaml:"partial"`
}

type BatchConfig struct {
	WindowDays     int           `yaml:"window_days"`
	Interval       string        `yaml:"interval"`
	Exchanges      []string      `yaml:"exchanges"`
	Symbols        []string      `yaml:"symbols"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type SourceConfig struct {
	Binance ExchangeConfig `yaml:"binance"`
	Bybit   ExchangeConfig `yaml:"bybit"`
}

type ExchangeConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Category       string               `yaml:"category"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Limits         LimitsConfig         `yaml:"limits"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	LocalIP         string        `yaml:"local_ip"`
}

// LimitsConfig is the maximum number of rows one call returns per data type.
type LimitsConfig struct {
	Price        int `yaml:"price"`
	PriceIndex   int `yaml:"price_index"`
	FundingRate  int `yaml:"funding_rate"`
	PremiumIndex int `yaml:"premium_index"`
}

type WriterConfig struct {
	WriteEmpty bool          `yaml:"write_empty"`
	Parquet    ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	ListenAddr string           `yaml:"listen_addr"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	pool := ConnectionPoolConfig{MaxIdleConns: 20, MaxConnsPerHost: 10, IdleConnTimeout: 90 * time.Second}
	return &Config{
		Histflow: HistflowConfig{Name: "histflow", Version: "1.0.0"},
		Fetch:    FetchConfig{OutputDir: "./data", MaxWorkers: 5, Interval: "1m"},
		Reader: ReaderConfig{
			Timeout: 30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         time.Second,
				MaxDelay:          30 * time.Second,
				BackoffMultiplier: 5,
			},
			Jitter:    JitterConfig{Min: time.Second, Max: 3 * time.Second},
			RateLimit: RateLimitConfig{BurstSize: 1},
		},
		Cache: CacheConfig{Partial: PartialRefetch},
		Batch: BatchConfig{
			WindowDays: 30,
			Interval:   "1m",
			Exchanges:  []string{"binance", "bybit"},
		},
		Source: SourceConfig{
			Binance: ExchangeConfig{
				BaseURL:        "https://fapi.binance.com",
				ConnectionPool: pool,
				Limits:         LimitsConfig{Price: 1500, PriceIndex: 1500, FundingRate: 1000, PremiumIndex: 1500},
			},
			Bybit: ExchangeConfig{
				BaseURL:        "https://api.bybit.com",
				Category:       "linear",
				ConnectionPool: pool,
				Limits:         LimitsConfig{Price: 1000, PriceIndex: 1000, FundingRate: 200, PremiumIndex: 1000},
			},
		},
		Writer:  WriterConfig{WriteEmpty: true, Parquet: ParquetConfig{Compression: "snappy"}},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{CloudWatch: CloudWatchConfig{Namespace: "histflow"}},
	}
}

// LoadConfig reads path (resolved against APP_ENV) over Default, applies
// environment overrides and validates the result. A missing file at
// DefaultPath is not an error; the defaults are used instead.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, envConfigPaths())

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("HISTFLOW_OUTPUT_DIR")); v != "" {
		cfg.Fetch.OutputDir = v
	}
	if v := strings.TrimSpace(os.Getenv("HISTFLOW_MAX_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HISTFLOW_MAX_WORKERS: %w", err)
		}
		cfg.Fetch.MaxWorkers = n
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_BASE_URL")); v != "" {
		cfg.Source.Binance.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BYBIT_BASE_URL")); v != "" {
		cfg.Source.Bybit.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = v
		}
		if v := os.Getenv("S3_ENDPOINT"); v != "" {
			cfg.Storage.S3.Endpoint = strings.TrimSpace(v)
		}
	}
	return nil
}

// Validate checks the fields every component relies on.
func Validate(cfg *Config) error {
	if cfg.Histflow.Name == "" {
		return fmt.Errorf("histflow.name is required")
	}
	if cfg.Fetch.OutputDir == "" {
		return fmt.Errorf("fetch.output_dir is required")
	}
	if cfg.Fetch.MaxWorkers <= 0 {
		return fmt.Errorf("fetch.max_workers must be greater than 0")
	}
	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}
	if cfg.Reader.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("reader.retry.max_attempts must be greater than 0")
	}
	if cfg.Reader.Retry.BaseDelay < 0 || cfg.Reader.Retry.MaxDelay < 0 {
		return fmt.Errorf("reader.retry delays must not be negative")
	}
	if cfg.Reader.Jitter.Min < 0 || cfg.Reader.Jitter.Max < cfg.Reader.Jitter.Min {
		return fmt.Errorf("reader.jitter must satisfy 0 <= min <= max")
	}
	if cfg.Reader.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("reader.rate_limit.requests_per_second must not be negative")
	}

	switch cfg.Cache.Partial {
	case PartialRefetch, PartialExtend:
	default:
		return fmt.Errorf("cache.partial must be %q or %q, got %q", PartialRefetch, PartialExtend, cfg.Cache.Partial)
	}

	if cfg.Batch.WindowDays <= 0 {
		return fmt.Errorf("batch.window_days must be greater than 0")
	}
	if len(cfg.Batch.Exchanges) < 2 {
		return fmt.Errorf("batch.exchanges needs at least two exchanges to intersect")
	}

	for name, src := range map[string]ExchangeConfig{"binance": cfg.Source.Binance, "bybit": cfg.Source.Bybit} {
		if src.BaseURL == "" {
			return fmt.Errorf("source.%s.base_url is required", name)
		}
		l := src.Limits
		if l.Price <= 0 || l.PriceIndex <= 0 || l.FundingRate <= 0 || l.PremiumIndex <= 0 {
			return fmt.Errorf("source.%s.limits must all be greater than 0", name)
		}
	}

	switch cfg.Writer.Parquet.Compression {
	case "", "snappy", "gzip", "uncompressed", "none":
	default:
		return fmt.Errorf("writer.parquet.compression '%s' is not supported", cfg.Writer.Parquet.Compression)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
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
