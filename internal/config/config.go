// Package config loads and validates the pipeline configuration from
// YAML, with DOCPIPE_* environment variables taking highest priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file looked for in the data directory.
const DefaultConfigName = "docpipe.yaml"

// Config is the complete service configuration.
type Config struct {
	// DataDir holds the ledger, index, logs, and local buckets.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Query    QueryConfig    `yaml:"query" json:"query"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	// Mode is "local" (filesystem drop folder) or "s3".
	Mode string `yaml:"mode" json:"mode"`

	RawBucket          string `yaml:"raw_bucket" json:"raw_bucket"`
	IntermediateBucket string `yaml:"intermediate_bucket" json:"intermediate_bucket"`
	IntermediatePrefix string `yaml:"intermediate_prefix" json:"intermediate_prefix"`
	RawSuffix          string `yaml:"raw_suffix" json:"raw_suffix"`

	// S3 settings, used only in s3 mode.
	S3Endpoint  string `yaml:"s3_endpoint" json:"s3_endpoint"`
	S3Region    string `yaml:"s3_region" json:"s3_region"`
	S3AccessKey string `yaml:"s3_access_key" json:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key" json:"s3_secret_key"`
	S3UseSSL    bool   `yaml:"s3_use_ssl" json:"s3_use_ssl"`
}

// PipelineConfig tunes event processing.
type PipelineConfig struct {
	// Workers is the router worker pool size.
	Workers int `yaml:"workers" json:"workers"`

	// QueueSize bounds the in-memory notification queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// RetryAttempts is the per-delivery attempt cap.
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`

	// MaxDeliveries is the cross-delivery cap before a key is frozen.
	MaxDeliveries int `yaml:"max_deliveries" json:"max_deliveries"`

	// BackoffBase and BackoffMax shape the retry delay.
	BackoffBase Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max" json:"backoff_max"`

	// StageTimeout bounds a single stage attempt.
	StageTimeout Duration `yaml:"stage_timeout" json:"stage_timeout"`

	// Lease is how long an in-progress ledger entry blocks takeover.
	Lease Duration `yaml:"lease" json:"lease"`

	// DebounceWindow is the drop-folder quiet period (local mode).
	DebounceWindow Duration `yaml:"debounce_window" json:"debounce_window"`
}

// QueryConfig tunes the read path.
type QueryConfig struct {
	MaxResults    int           `yaml:"max_results" json:"max_results"`
	SnippetRadius int           `yaml:"snippet_radius" json:"snippet_radius"`
	CacheSize     int           `yaml:"cache_size" json:"cache_size"`
	CacheTTL      Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	ToFile bool   `yaml:"to_file" json:"to_file"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		DataDir: ".docpipe",
		Storage: StorageConfig{
			Mode:               "local",
			RawBucket:          "raw",
			IntermediateBucket: "intermediate",
			IntermediatePrefix: "extracted/",
			RawSuffix:          ".pdf",
			S3Region:           "us-east-1",
			S3UseSSL:           true,
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			QueueSize:      64,
			RetryAttempts:  3,
			MaxDeliveries:  5,
			BackoffBase:    Duration(time.Second),
			BackoffMax:     Duration(16 * time.Second),
			StageTimeout:   Duration(2 * time.Minute),
			Lease:          Duration(15 * time.Minute),
			DebounceWindow: Duration(200 * time.Millisecond),
		},
		Query: QueryConfig{
			MaxResults:    10,
			SnippetRadius: 120,
			CacheSize:     256,
			CacheTTL:      Duration(30 * time.Second),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8480",
		},
		Logging: LoggingConfig{
			Level:  "info",
			ToFile: true,
		},
	}
}

// Load reads configuration from dir. A missing config file yields the
// defaults; a present file overlays them; DOCPIPE_* environment
// variables win over both. A .env file in the working directory is
// loaded first, without overriding the real environment.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if dir != "" {
		cfg.DataDir = dir
	}

	path := filepath.Join(cfg.DataDir, DefaultConfigName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults apply.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies DOCPIPE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCPIPE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOCPIPE_STORAGE_MODE"); v != "" {
		c.Storage.Mode = v
	}
	if v := os.Getenv("DOCPIPE_RAW_BUCKET"); v != "" {
		c.Storage.RawBucket = v
	}
	if v := os.Getenv("DOCPIPE_INTERMEDIATE_BUCKET"); v != "" {
		c.Storage.IntermediateBucket = v
	}
	if v := os.Getenv("DOCPIPE_S3_ENDPOINT"); v != "" {
		c.Storage.S3Endpoint = v
	}
	if v := os.Getenv("DOCPIPE_S3_ACCESS_KEY"); v != "" {
		c.Storage.S3AccessKey = v
	}
	if v := os.Getenv("DOCPIPE_S3_SECRET_KEY"); v != "" {
		c.Storage.S3SecretKey = v
	}
	if v := os.Getenv("DOCPIPE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("DOCPIPE_MAX_DELIVERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxDeliveries = n
		}
	}
	if v := os.Getenv("DOCPIPE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DOCPIPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case "local":
	case "s3":
		if c.Storage.S3Endpoint == "" {
			return fmt.Errorf("storage.s3_endpoint is required in s3 mode")
		}
		if c.Storage.S3AccessKey == "" || c.Storage.S3SecretKey == "" {
			return fmt.Errorf("s3 credentials are required in s3 mode")
		}
	default:
		return fmt.Errorf("storage.mode must be local or s3, got %q", c.Storage.Mode)
	}

	if c.Storage.RawBucket == "" || c.Storage.IntermediateBucket == "" {
		return fmt.Errorf("storage buckets must not be empty")
	}
	if c.Storage.RawBucket == c.Storage.IntermediateBucket && c.Storage.IntermediatePrefix == "" {
		return fmt.Errorf("intermediate_prefix is required when raw and intermediate buckets are shared")
	}
	if !strings.HasSuffix(c.Storage.IntermediatePrefix, "/") {
		return fmt.Errorf("intermediate_prefix must end with /")
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Pipeline.RetryAttempts <= 0 {
		return fmt.Errorf("pipeline.retry_attempts must be positive")
	}
	if c.Pipeline.MaxDeliveries <= 0 {
		return fmt.Errorf("pipeline.max_deliveries must be positive")
	}
	if c.Pipeline.BackoffBase <= 0 || c.Pipeline.BackoffMax < c.Pipeline.BackoffBase {
		return fmt.Errorf("pipeline backoff must satisfy 0 < base <= max")
	}

	if c.Query.MaxResults <= 0 {
		return fmt.Errorf("query.max_results must be positive")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}

// Save writes the configuration to the data directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.DataDir, DefaultConfigName), data, 0644)
}

// LedgerPath returns the SQLite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// IndexPath returns the search index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.bleve")
}

// BlobRoot returns the local object store root (local mode).
func (c *Config) BlobRoot() string {
	return filepath.Join(c.DataDir, "blobs")
}

// DeadLetterPath returns the dead-letter journal location.
func (c *Config) DeadLetterPath() string {
	return filepath.Join(c.DataDir, "dead_letters.jsonl")
}

// LogPath returns the log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "docpipe.log")
}

// LockPath returns the data-directory lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "docpipe.lock")
}
