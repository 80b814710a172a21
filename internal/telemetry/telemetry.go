// Package telemetry installs the global OpenTelemetry providers backing the
// spans and instruments recorded elsewhere (vector store spans, embedding
// metrics). Until a provider is installed those all no-op; this package
// exports them over OTLP when enabled.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates telemetry configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid telemetry configuration")

// Config controls the OTLP export pipeline.
type Config struct {
	// Enabled turns export on. Disabled yields a no-op Telemetry; spans and
	// metrics are still recorded through the default no-op providers.
	Enabled bool

	// Endpoint is the OTLP collector address as host:port.
	Endpoint string

	// Protocol selects the exporter transport: "grpc" (default) or
	// "http/protobuf".
	Protocol string

	// ServiceName and ServiceVersion identify this process in the resource.
	ServiceName    string
	ServiceVersion string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64

	// MetricInterval is the periodic metric export interval.
	MetricInterval time.Duration

	// ShutdownTimeout bounds provider shutdown when the caller's context
	// carries no deadline.
	ShutdownTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.Protocol == "" {
		c.Protocol = "grpc"
	}
	if c.ServiceName == "" {
		c.ServiceName = "corpusd"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.1.0"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint required when enabled", ErrInvalidConfig)
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample_rate must be in [0, 1], got %g", ErrInvalidConfig, c.SampleRate)
	}
	if c.MetricInterval <= 0 {
		return fmt.Errorf("%w: metric_interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Telemetry owns the installed providers and shuts them down on exit.
type Telemetry struct {
	cfg            Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logger         *zap.Logger
}

// New validates the config and, when enabled, installs OTLP-backed tracer
// and meter providers as the process globals. Exporter construction failures
// degrade to the no-op providers with a warning rather than failing startup;
// the daemon works without a collector.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Telemetry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Telemetry{cfg: cfg, logger: logger.Named("telemetry")}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		t.logger.Warn("telemetry resource unavailable, instruments stay no-op", zap.Error(err))
		return t, nil
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.logger.Warn("trace exporter unavailable", zap.Error(err))
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		t.logger.Warn("metric exporter unavailable", zap.Error(err))
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.logger.Info("telemetry export enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol))
	return t, nil
}

// Shutdown flushes and stops the installed providers. Safe on a disabled
// instance.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
