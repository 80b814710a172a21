package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "corpusd", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Enabled: true}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "unknown protocol", mutate: func(c *Config) { c.Protocol = "udp" }},
		{name: "sample rate above one", mutate: func(c *Config) { c.SampleRate = 1.5 }},
		{name: "negative sample rate", mutate: func(c *Config) { c.SampleRate = -0.1 }},
		{name: "zero metric interval", mutate: func(c *Config) { c.MetricInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestDisabledSkipsValidation(t *testing.T) {
	cfg := Config{Enabled: false, Protocol: "udp", SampleRate: 42}
	assert.NoError(t, cfg.Validate())
}

func TestDisabledTelemetryIsNoOp(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx, Config{}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tel)

	// Nothing was installed, so shutdown has nothing to flush.
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := Config{Enabled: true, SampleRate: 2}
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestShutdownNilReceiver(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
