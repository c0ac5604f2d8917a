// Package config provides the unified configuration for the geolinks
// ingestion pipeline. A single Config structure covers the source datasets,
// the target database, and the chunking parameters of the loader, so every
// command works from one YAML file.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration for an ingestion run.
type Config struct {
	// Datasets locates the two source datasets
	Datasets DatasetsConfig `yaml:"datasets" json:"datasets"`

	// Database configures the PostgreSQL/PostGIS target
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Ingest controls chunking and batching of the loader
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`

	// Logging configures the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DatasetsConfig locates the source datasets. Each location may be a local
// path, an http(s) URL, or an s3:// URL; gzip-compressed parquet is handled
// transparently.
type DatasetsConfig struct {
	// Links is the road-link dataset (parquet, optionally gzipped)
	Links string `yaml:"links" json:"links"`
	// Speeds is the traffic-speed dataset (parquet, optionally gzipped)
	Speeds string `yaml:"speeds" json:"speeds"`
	// SpeedUnit is the unit of the source speed column: "mph" or "kph".
	// Storage is always mph.
	SpeedUnit string `yaml:"speed_unit" json:"speed_unit"`
	// S3Region overrides the AWS region for s3:// locations
	S3Region string `yaml:"s3_region" json:"s3_region"`
}

// DatabaseConfig configures the target database connection.
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string
	DSN string `yaml:"dsn" json:"dsn"`
	// MaxConns caps the connection pool size
	MaxConns int32 `yaml:"max_conns" json:"max_conns"`
	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// IngestConfig controls the chunked loader.
type IngestConfig struct {
	// ChunkSize is the number of source rows read, transformed, and
	// committed as one transaction. 5000 balances memory against
	// per-chunk overhead for the ~1.2M row speed dataset.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// BatchSize is the number of rows per bulk-write statement within a
	// chunk, amortizing write round-trips.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Truncate clears both tables before loading. Re-running without it is
	// only idempotent for links (natural key); speed records would
	// duplicate.
	Truncate bool `yaml:"truncate" json:"truncate"`
	// ProgressEvery emits a progress log line every N chunks
	ProgressEvery int `yaml:"progress_every" json:"progress_every"`
	// RejectSampleSize bounds the per-reason samples kept in the summary
	RejectSampleSize int `yaml:"reject_sample_size" json:"reject_sample_size"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// New returns a Config with production defaults. Dataset locations and the
// database DSN have no defaults and must come from the YAML file or flags.
func New() *Config {
	return &Config{
		Datasets: DatasetsConfig{
			SpeedUnit: "mph",
		},
		Database: DatabaseConfig{
			MaxConns:       4,
			ConnectTimeout: 10 * time.Second,
		},
		Ingest: IngestConfig{
			ChunkSize:        5000,
			BatchSize:        1000,
			Truncate:         false,
			ProgressEvery:    10,
			RejectSampleSize: 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive")
	}
	if c.Ingest.BatchSize > c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.batch_size cannot exceed ingest.chunk_size")
	}
	switch c.Datasets.SpeedUnit {
	case "mph", "kph":
	default:
		return fmt.Errorf("datasets.speed_unit must be mph or kph, got %q", c.Datasets.SpeedUnit)
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database.max_conns must be positive")
	}
	return nil
}
