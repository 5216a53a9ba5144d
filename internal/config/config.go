// Package config provides unified configuration for the salepipe pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full pipeline configuration.
type Config struct {
	// Source identifies the raw sales object to ingest.
	Source SourceConfig `json:"source" yaml:"source"`

	// Warehouse configures the relational store.
	Warehouse WarehouseConfig `json:"warehouse" yaml:"warehouse"`

	// Storage configures object storage access.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Load configures batch loading behavior.
	Load LoadConfig `json:"load" yaml:"load"`

	// Staging configures the local batch spool.
	Staging StagingConfig `json:"staging" yaml:"staging"`

	// LogLevel is the logrus level name (debug, info, warn, error).
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// SourceConfig identifies the raw feed object.
type SourceConfig struct {
	// Bucket is the object storage bucket/container name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// ObjectKey is the source object key (file name).
	ObjectKey string `json:"object_key" yaml:"object_key"`
}

// WarehouseConfig configures the relational store connection.
type WarehouseConfig struct {
	// Driver is the database/sql driver name: "pgx" or "sqlite3".
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxOpenConns limits the connection pool size.
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConnMaxLifetime bounds connection reuse.
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// StorageConfig configures object storage.
type StorageConfig struct {
	// Type selects the backend: "s3" or "local".
	Type string `json:"type" yaml:"type"`

	// Path is the base directory for local storage.
	Path string `json:"path" yaml:"path"`

	// S3 holds S3/MinIO settings.
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3/MinIO connection settings.
type S3Config struct {
	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is an optional custom endpoint (for MinIO).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LoadConfig configures batch loading behavior.
type LoadConfig struct {
	// MaxRetries bounds retries of connectivity failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBackoff is the base backoff between retries (doubled each attempt).
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// ErrorRateThreshold is the rejected/total fraction above which the
	// whole batch transaction is rolled back.
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"`
}

// StagingConfig configures the local batch spool.
type StagingConfig struct {
	// Enabled turns the spool on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the spool directory.
	Dir string `json:"dir" yaml:"dir"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			ObjectKey: "fashion_store_sales.csv",
		},
		Warehouse: WarehouseConfig{
			Driver:          "pgx",
			MaxOpenConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type: "s3",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Load: LoadConfig{
			MaxRetries:         3,
			RetryBackoff:       500 * time.Millisecond,
			ErrorRateThreshold: 0.10,
		},
		Staging: StagingConfig{
			Enabled: true,
			Dir:     "staging",
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML or JSON file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// Load builds the configuration: .env overlay, then the optional config
// file, then environment variable overrides, then validation.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	var cfg *Config
	if path != "" {
		c, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = DefaultConfig()
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides.
// Variables use the SALEPIPE_ prefix; DATABASE_URL, MINIO_BUCKET_NAME and
// FILE_NAME are honored as bare names for compatibility with existing
// deployments.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SALEPIPE_WAREHOUSE_DRIVER"); v != "" {
		cfg.Warehouse.Driver = v
	}
	if v := os.Getenv("SALEPIPE_WAREHOUSE_DSN"); v != "" {
		cfg.Warehouse.DSN = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Warehouse.DSN == "" {
		cfg.Warehouse.DSN = v
	}

	if v := os.Getenv("SALEPIPE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SALEPIPE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SALEPIPE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SALEPIPE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("SALEPIPE_S3_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	if v := os.Getenv("SALEPIPE_SOURCE_BUCKET"); v != "" {
		cfg.Source.Bucket = v
	}
	if v := os.Getenv("MINIO_BUCKET_NAME"); v != "" && cfg.Source.Bucket == "" {
		cfg.Source.Bucket = v
	}
	if v := os.Getenv("FILE_NAME"); v != "" {
		cfg.Source.ObjectKey = v
	}
	if v := os.Getenv("SALEPIPE_SOURCE_OBJECT_KEY"); v != "" {
		cfg.Source.ObjectKey = v
	}

	if v := os.Getenv("SALEPIPE_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Load.MaxRetries)
	}
	if v := os.Getenv("SALEPIPE_ERROR_RATE_THRESHOLD"); v != "" {
		fmt.Sscanf(v, "%f", &cfg.Load.ErrorRateThreshold)
	}

	if v := os.Getenv("SALEPIPE_STAGING_DIR"); v != "" {
		cfg.Staging.Dir = v
	}
	if v := os.Getenv("SALEPIPE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Warehouse.Driver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("unsupported warehouse driver: %q", c.Warehouse.Driver)
	}
	if c.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse DSN is required")
	}

	switch c.Storage.Type {
	case "s3":
		if c.Source.Bucket == "" {
			return fmt.Errorf("source bucket is required for s3 storage")
		}
	case "local":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for local storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Storage.Type)
	}

	if c.Source.ObjectKey == "" {
		return fmt.Errorf("source object key is required")
	}
	if c.Load.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.Load.ErrorRateThreshold < 0 || c.Load.ErrorRateThreshold > 1 {
		return fmt.Errorf("error_rate_threshold must be in [0, 1]")
	}
	return nil
}
