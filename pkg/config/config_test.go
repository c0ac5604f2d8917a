package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, 5000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 1000, cfg.Ingest.BatchSize)
	assert.Equal(t, "mph", cfg.Datasets.SpeedUnit)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Ingest.Truncate)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geolinks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
datasets:
  links: data/links.parquet.gz
  speeds: data/speeds.parquet.gz
  speed_unit: kph
database:
  dsn: postgres://geolinks@localhost/geolinks
ingest:
  chunk_size: 2000
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/links.parquet.gz", cfg.Datasets.Links)
	assert.Equal(t, "kph", cfg.Datasets.SpeedUnit)
	assert.Equal(t, 2000, cfg.Ingest.ChunkSize)
	// Untouched settings keep their defaults.
	assert.Equal(t, 1000, cfg.Ingest.BatchSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("GEOLINKS_TEST_DSN", "postgres://secret@db/geolinks")

	path := filepath.Join(t.TempDir(), "geolinks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: ${GEOLINKS_TEST_DSN}
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://secret@db/geolinks", cfg.Database.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := New()
		cfg.Database.DSN = "postgres://localhost/geolinks"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"batch larger than chunk", func(c *Config) { c.Ingest.BatchSize = c.Ingest.ChunkSize + 1 }},
		{"bad speed unit", func(c *Config) { c.Datasets.SpeedUnit = "knots" }},
		{"zero max conns", func(c *Config) { c.Database.MaxConns = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
