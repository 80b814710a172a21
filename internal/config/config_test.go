package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, time.Second, cfg.Qdrant.RetryBackoff)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 1000, cfg.Sync.ChunkSize)
	assert.Equal(t, 200, cfg.Sync.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.BaseK)
	assert.Equal(t, 25, cfg.Retrieval.MaxK)
	assert.True(t, cfg.Retrieval.Rerank)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.Telemetry.MetricInterval)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/corpusd
sync:
  chunk_size: 500
  overlap: 50
retrieval:
  base_k: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/corpusd", cfg.DataDir)
	assert.Equal(t, 500, cfg.Sync.ChunkSize)
	assert.Equal(t, 50, cfg.Sync.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.BaseK)
	// Untouched keys keep defaults.
	assert.Equal(t, 32, cfg.Sync.BatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  chunk_size: 500\n"), 0o644))

	t.Setenv("CORPUSD_SYNC_CHUNK_SIZE", "750")
	t.Setenv("CORPUSD_QDRANT_HOST", "qdrant.internal")
	t.Setenv("CORPUSD_DATA_DIR", "/srv/corpusd")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 750, cfg.Sync.ChunkSize)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, "/srv/corpusd", cfg.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing data dir", mutate: func(c *Config) { c.DataDir = "" }},
		{name: "zero dimension", mutate: func(c *Config) { c.Embedding.Dimension = 0 }},
		{name: "zero chunk size", mutate: func(c *Config) { c.Sync.ChunkSize = 0 }},
		{name: "overlap at chunk size", mutate: func(c *Config) { c.Sync.Overlap = c.Sync.ChunkSize }},
		{name: "zero base k", mutate: func(c *Config) { c.Retrieval.BaseK = 0 }},
		{name: "max k below base k", mutate: func(c *Config) { c.Retrieval.MaxK = c.Retrieval.BaseK - 1 }},
		{name: "telemetry enabled without endpoint", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}},
		{name: "telemetry sample rate out of range", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 1.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
