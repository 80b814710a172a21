// Package embeddings provides the embedding gateway client used by the sync
// and retrieval engines.
package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors classifying gateway failures. ErrRateLimited and
// ErrUnavailable are retryable; ErrMalformedInput is not.
var (
	// ErrRateLimited indicates the gateway rejected the request with a
	// rate limit (HTTP 429). Retry after backoff.
	ErrRateLimited = errors.New("embedding gateway rate limited")

	// ErrMalformedInput indicates the gateway rejected the request as
	// invalid (other 4xx). Retrying the same input cannot succeed.
	ErrMalformedInput = errors.New("embedding gateway rejected input")

	// ErrUnavailable indicates the gateway could not be reached or
	// failed server-side. Retry after backoff.
	ErrUnavailable = errors.New("embedding gateway unavailable")
)

// IsRetryable reports whether an embedding error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedInput) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return true
	}
	// Deadline and transport errors without a mapped sentinel.
	return errors.Is(err, context.DeadlineExceeded)
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments embeds a batch of document chunks. The result has
	// one vector per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector size this embedder produces.
	Dimension() int
}
