package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRerankerOrdersByOverlap(t *testing.T) {
	r := NewSimpleReranker()

	candidates := []string{
		"completely unrelated text about cooking",
		"error handling in distributed systems",
		"distributed systems error handling and retry budgets",
	}

	indices, err := r.Rerank(context.Background(), "error handling distributed systems", candidates, 0)
	require.NoError(t, err)
	require.Len(t, indices, 3)
	assert.Equal(t, 1, indices[0])
	assert.Equal(t, 2, indices[1])
	assert.Equal(t, 0, indices[2])
}

func TestSimpleRerankerStableTies(t *testing.T) {
	r := NewSimpleReranker()

	// All candidates score identically; original order must survive.
	candidates := []string{"alpha beta", "alpha gamma", "alpha delta"}

	indices, err := r.Rerank(context.Background(), "alpha", candidates, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indices)
}

func TestSimpleRerankerTopK(t *testing.T) {
	r := NewSimpleReranker()

	indices, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c", "d"}, 2)
	require.NoError(t, err)
	assert.Len(t, indices, 2)
}

func TestSimpleRerankerEmptyCandidates(t *testing.T) {
	r := NewSimpleReranker()

	indices, err := r.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, indices)
}

func TestSimpleRerankerPunctuationInsensitive(t *testing.T) {
	r := NewSimpleReranker()

	candidates := []string{"nothing relevant", "budgets, retries."}

	indices, err := r.Rerank(context.Background(), "retries budgets", candidates, 1)
	require.NoError(t, err)
	require.Len(t, indices, 1)
	assert.Equal(t, 1, indices[0])
}
