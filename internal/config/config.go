// Package config loads corpusd configuration from defaults, an optional
// YAML file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig indicates configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// envPrefix is the prefix for environment overrides, e.g.
// CORPUSD_QDRANT_HOST overrides qdrant.host.
const envPrefix = "CORPUSD_"

// defaultYAML seeds every key so partial files and env-only setups work.
const defaultYAML = `
data_dir: ./data
logging:
  level: info
  format: json
http:
  addr: :8085
qdrant:
  host: localhost
  port: 6334
  use_tls: false
  max_retries: 3
  retry_backoff: 1s
embeddings:
  base_url: http://localhost:8080
  dimension: 384
  timeout: 30s
  requests_per_second: 0
sync:
  chunk_size: 1000
  overlap: 200
  batch_size: 32
  max_in_flight: 4
  max_retries: 3
  retry_backoff: 1s
retrieval:
  base_k: 5
  max_k: 25
  doc_types: []
  rerank: true
telemetry:
  enabled: false
  endpoint: localhost:4317
  protocol: grpc
  service_name: corpusd
  service_version: 0.1.0
  insecure: true
  sample_rate: 1.0
  metric_interval: 15s
  shutdown_timeout: 5s
`

// Config is the root configuration.
type Config struct {
	DataDir   string           `koanf:"data_dir"`
	Logging   LoggingConfig    `koanf:"logging"`
	HTTP      HTTPConfig       `koanf:"http"`
	Qdrant    QdrantConfig     `koanf:"qdrant"`
	Embedding EmbeddingConfig  `koanf:"embeddings"`
	Sync      SyncConfig       `koanf:"sync"`
	Retrieval RetrievalConfig  `koanf:"retrieval"`
	Telemetry TelemetryConfig  `koanf:"telemetry"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// QdrantConfig controls the vector index client.
type QdrantConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	UseTLS       bool          `koanf:"use_tls"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// EmbeddingConfig controls the embedding gateway client.
type EmbeddingConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Dimension         int           `koanf:"dimension"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// SyncConfig controls chunking and the embedding pipeline.
type SyncConfig struct {
	ChunkSize    int           `koanf:"chunk_size"`
	Overlap      int           `koanf:"overlap"`
	BatchSize    int           `koanf:"batch_size"`
	MaxInFlight  int           `koanf:"max_in_flight"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// RetrievalConfig controls the query planner.
type RetrievalConfig struct {
	BaseK    int      `koanf:"base_k"`
	MaxK     int      `koanf:"max_k"`
	DocTypes []string `koanf:"doc_types"`
	Rerank   bool     `koanf:"rerank"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Endpoint        string        `koanf:"endpoint"`
	Protocol        string        `koanf:"protocol"`
	ServiceName     string        `koanf:"service_name"`
	ServiceVersion  string        `koanf:"service_version"`
	Insecure        bool          `koanf:"insecure"`
	SampleRate      float64       `koanf:"sample_rate"`
	MetricInterval  time.Duration `koanf:"metric_interval"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply. A missing file at an explicit path is an
// error; validation failures wrap ErrInvalidConfig.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// CORPUSD_SYNC_CHUNK_SIZE -> sync.chunk_size; top-level keys such as
	// CORPUSD_DATA_DIR stay flat.
	sections := map[string]bool{
		"logging": true, "http": true, "qdrant": true,
		"embeddings": true, "sync": true, "retrieval": true,
		"telemetry": true,
	}
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if head, rest, ok := strings.Cut(s, "_"); ok && sections[head] {
			return head + "." + rest
		}
		return s
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir required", ErrInvalidConfig)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embeddings.dimension must be positive", ErrInvalidConfig)
	}
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("%w: sync.chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Sync.Overlap < 0 || c.Sync.Overlap >= c.Sync.ChunkSize {
		return fmt.Errorf("%w: sync.overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if c.Retrieval.BaseK <= 0 {
		return fmt.Errorf("%w: retrieval.base_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.MaxK < c.Retrieval.BaseK {
		return fmt.Errorf("%w: retrieval.max_k must be >= base_k", ErrInvalidConfig)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry.endpoint required when enabled", ErrInvalidConfig)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry.sample_rate must be in [0, 1]", ErrInvalidConfig)
		}
	}
	return nil
}
