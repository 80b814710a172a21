package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, dimension int) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGateway(GatewayConfig{BaseURL: srv.URL, Dimension: dimension}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func echoVectors(t *testing.T, dimension int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			v := make([]float32, dimension)
			v[0] = float32(i + 1)
			vectors[i] = v
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}
}

func TestGatewayEmbedDocuments(t *testing.T) {
	g := newTestGateway(t, echoVectors(t, 3), 3)

	vectors, err := g.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
}

func TestGatewayEmbedQuery(t *testing.T) {
	g := newTestGateway(t, echoVectors(t, 3), 3)

	vector, err := g.EmbedQuery(context.Background(), "a question")
	require.NoError(t, err)
	assert.Len(t, vector, 3)
}

func TestGatewayErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: ErrRateLimited},
		{name: "bad request", status: http.StatusBadRequest, wantErr: ErrMalformedInput},
		{name: "payload too large", status: http.StatusRequestEntityTooLarge, wantErr: ErrMalformedInput},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrUnavailable},
		{name: "bad gateway", status: http.StatusBadGateway, wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}, 3)

			_, err := g.EmbedDocuments(context.Background(), []string{"x"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGatewayRetryability(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.True(t, IsRetryable(ErrUnavailable))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(ErrMalformedInput))
	assert.False(t, IsRetryable(nil))
}

func TestGatewayDimensionMismatch(t *testing.T) {
	g := newTestGateway(t, echoVectors(t, 5), 3)

	_, err := g.EmbedDocuments(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGatewayVectorCountMismatch(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1, 2, 3}}))
	}, 3)

	_, err := g.EmbedDocuments(context.Background(), []string{"one", "two"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGatewayEmptyBatch(t *testing.T) {
	g := newTestGateway(t, echoVectors(t, 3), 3)

	_, err := g.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestGatewayUnreachable(t *testing.T) {
	g, err := NewGateway(GatewayConfig{BaseURL: "http://127.0.0.1:1", Dimension: 3}, zap.NewNop())
	require.NoError(t, err)

	_, err = g.EmbedDocuments(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGatewayConfigValidation(t *testing.T) {
	_, err := NewGateway(GatewayConfig{Dimension: 3}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewGateway(GatewayConfig{BaseURL: "http://localhost"}, zap.NewNop())
	assert.Error(t, err)
}
