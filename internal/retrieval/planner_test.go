package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/project"
	"github.com/fyrsmithlabs/corpusd/internal/reranker"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// fakeEmbedder returns a fixed vector for every input.
type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vector, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

func newTestHandle(t *testing.T) *project.Handle {
	t.Helper()
	m := project.NewManager(t.TempDir(), zap.NewNop())
	h, err := m.Acquire(context.Background(), "testproj")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return h
}

func seedPoints(t *testing.T, store *vectorstore.MemoryStore, collection string, points []vectorstore.Point) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, collection, 3))
	require.NoError(t, store.Upsert(ctx, collection, points))
}

func TestPlannerQuery(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	h := newTestHandle(t)

	seedPoints(t, store, h.Collection(), []vectorstore.Point{
		{
			ID:     "a",
			Vector: []float32{1, 0, 0},
			Payload: map[string]any{
				vectorstore.FieldContentHash: "h1",
				vectorstore.FieldChunkText:   "alpha chunk",
				vectorstore.FieldCitation:    "Source A",
				vectorstore.FieldChunkIndex:  0,
				vectorstore.FieldYear:        2020,
			},
		},
		{
			ID:     "b",
			Vector: []float32{0.5, 0.5, 0},
			Payload: map[string]any{
				vectorstore.FieldContentHash: "h2",
				vectorstore.FieldChunkText:   "beta chunk",
				vectorstore.FieldCitation:    "Source B",
				vectorstore.FieldChunkIndex:  1,
				vectorstore.FieldYear:        2021,
			},
		},
	})

	p := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}}, nil, PlannerConfig{BaseK: 5, MaxK: 10}, zap.NewNop())

	result, err := p.Query(context.Background(), h, "alpha", nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "h1", result.Matches[0].ContentHash)
	assert.Equal(t, 0, result.Matches[0].Rank)
	assert.Equal(t, 1, result.Matches[1].Rank)
	assert.Equal(t, []string{"Source A", "Source B"}, result.Citations)
	assert.Equal(t, "low", result.Complexity)
	assert.Equal(t, 5, result.K)
}

func TestPlannerEmptyResultIsSuccess(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	h := newTestHandle(t)
	require.NoError(t, store.EnsureCollection(context.Background(), h.Collection(), 3))

	p := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}}, nil, PlannerConfig{BaseK: 5, MaxK: 10}, zap.NewNop())

	result, err := p.Query(context.Background(), h, "anything", &vectorstore.Filter{DocTypes: []string{"absent"}}, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Empty(t, result.Citations)
}

func TestPlannerQueryBeforeFirstSync(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	h := newTestHandle(t)

	p := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}}, nil, PlannerConfig{BaseK: 5, MaxK: 10}, zap.NewNop())

	// No sync has run, so the collection does not exist; the corpus is
	// simply empty.
	result, err := p.Query(context.Background(), h, "anything", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Empty(t, result.Citations)
	assert.Equal(t, 5, result.K)
}

func TestPlannerValidation(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	h := newTestHandle(t)

	p := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}}, nil,
		PlannerConfig{BaseK: 5, MaxK: 10, DocTypes: []string{"report", "memo"}}, zap.NewNop())

	t.Run("empty query", func(t *testing.T) {
		_, err := p.Query(context.Background(), h, "", nil, 0)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("inverted year range", func(t *testing.T) {
		from, to := 2020, 2000
		_, err := p.Query(context.Background(), h, "q", &vectorstore.Filter{YearFrom: &from, YearTo: &to}, 0)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
	})

	t.Run("unknown doc type", func(t *testing.T) {
		_, err := p.Query(context.Background(), h, "q", &vectorstore.Filter{DocTypes: []string{"novel"}}, 0)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
	})

	t.Run("known doc type accepted", func(t *testing.T) {
		require.NoError(t, store.EnsureCollection(context.Background(), h.Collection(), 3))
		_, err := p.Query(context.Background(), h, "q", &vectorstore.Filter{DocTypes: []string{"report"}}, 0)
		assert.NoError(t, err)
	})
}

func TestPlannerKHint(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	h := newTestHandle(t)
	require.NoError(t, store.EnsureCollection(context.Background(), h.Collection(), 3))

	p := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}}, nil, PlannerConfig{BaseK: 5, MaxK: 10}, zap.NewNop())

	result, err := p.Query(context.Background(), h, "q", nil, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, result.K)

	// Hints are still capped.
	result, err = p.Query(context.Background(), h, "q", nil, 99)
	require.NoError(t, err)
	assert.Equal(t, 10, result.K)
}

func TestPlannerRerank(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	h := newTestHandle(t)

	// Vector order favors "generic filler"; the lexical reranker should
	// promote the chunk that shares the query's terms.
	seedPoints(t, store, h.Collection(), []vectorstore.Point{
		{
			ID:     "a",
			Vector: []float32{1, 0, 0},
			Payload: map[string]any{
				vectorstore.FieldChunkText: "generic filler text",
			},
		},
		{
			ID:     "b",
			Vector: []float32{0.9, 0.1, 0},
			Payload: map[string]any{
				vectorstore.FieldChunkText: "orphan cleanup removes stale points",
			},
		},
	})

	p := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}}, reranker.NewSimpleReranker(),
		PlannerConfig{BaseK: 5, MaxK: 10}, zap.NewNop())

	result, err := p.Query(context.Background(), h, "orphan cleanup stale points", nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "orphan cleanup removes stale points", result.Matches[0].ChunkText)
	assert.Equal(t, 0, result.Matches[0].Rank)
	assert.Equal(t, 1, result.Matches[1].Rank)
}
