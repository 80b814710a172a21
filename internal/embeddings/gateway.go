package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GatewayConfig configures the HTTP embedding gateway client.
type GatewayConfig struct {
	// BaseURL is the gateway root, e.g. "http://localhost:8080". The
	// client posts batches to BaseURL + "/embed".
	BaseURL string

	// Dimension is the vector size the gateway's model produces. Must
	// match the collection vector size.
	Dimension int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RequestsPerSecond caps the client-side request rate. Zero disables
	// the limiter.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Defaults to 1 when rate limiting
	// is enabled.
	Burst int
}

// ApplyDefaults sets default values for unset fields.
func (c *GatewayConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		c.Burst = 1
	}
}

// Gateway is an Embedder backed by a text-embeddings-inference style HTTP
// service. Requests are JSON {"inputs": [...]} and responses are an array
// of float vectors in input order.
type Gateway struct {
	config  GatewayConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

// NewGateway creates a Gateway client.
func NewGateway(config GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	config.ApplyDefaults()
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrMalformedInput)
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrMalformedInput)
	}

	g := &Gateway{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		metrics: NewMetrics(logger),
		logger:  logger.Named("embeddings"),
	}
	if config.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return g, nil
}

// Dimension returns the configured vector size.
func (g *Gateway) Dimension() int { return g.config.Dimension }

// EmbedDocuments embeds a batch of document chunks.
func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := g.embed(ctx, texts)
	g.metrics.Record(ctx, "embed_documents", time.Since(start), len(texts), err)
	return vectors, err
}

// EmbedQuery embeds a single query string.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vectors, err := g.embed(ctx, []string{text})
	g.metrics.Record(ctx, "embed_query", time.Since(start), 1, err)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

func (g *Gateway) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrMalformedInput)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, detail)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fmt.Errorf("%w: status %d: %s", ErrMalformedInput, resp.StatusCode, detail)
		default:
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, detail)
		}
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrUnavailable, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != g.config.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrUnavailable, i, len(v), g.config.Dimension)
		}
	}
	return vectors, nil
}

// Ensure Gateway implements Embedder.
var _ Embedder = (*Gateway)(nil)
