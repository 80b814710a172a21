package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegisterAndDedup(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	doc, created, err := r.Register(ctx, RegisterRequest{
		Path:     "/docs/report.txt",
		DocType:  "report",
		Year:     2020,
		Citation: "Annual Report 2020",
		Content:  []byte("the report body"),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Hash([]byte("the report body")), doc.ContentHash)
	assert.Equal(t, "report.txt", doc.Filename)
	assert.Equal(t, StatusPending, doc.Status)

	// Same content under a different path is a dedup no-op.
	dup, created, err := r.Register(ctx, RegisterRequest{
		Path:    "/elsewhere/copy.txt",
		Content: []byte("the report body"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, doc.ID, dup.ID)
	assert.Equal(t, "/docs/report.txt", dup.Path)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, _, err := r.Register(ctx, RegisterRequest{Content: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _, err = r.Register(ctx, RegisterRequest{Path: "/docs/a.txt"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStatusTransitions(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	doc, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/a.txt", Content: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, r.MarkEmbedded(ctx, doc.ID, 5))
	got, err := r.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEmbedded, got.Status)
	assert.Equal(t, 5, got.ChunkCount)

	// Idempotent re-apply.
	require.NoError(t, r.MarkEmbedded(ctx, doc.ID, 5))

	require.NoError(t, r.MarkError(ctx, doc.ID, "gateway timeout"))
	got, err = r.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "gateway timeout", got.LastError)

	require.NoError(t, r.MarkPending(ctx, doc.ID))
	got, err = r.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.LastError)
}

func TestTransitionsOnMissingDocument(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.MarkEmbedded(ctx, 999, 1), ErrNotFound)
	assert.ErrorIs(t, r.MarkError(ctx, 999, "x"), ErrNotFound)
	assert.ErrorIs(t, r.Remove(ctx, 999), ErrNotFound)

	_, err := r.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingOrderAndErroredRetry(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/1.txt", Content: []byte("one")})
	require.NoError(t, err)
	second, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/2.txt", Content: []byte("two")})
	require.NoError(t, err)
	third, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/3.txt", Content: []byte("three")})
	require.NoError(t, err)

	require.NoError(t, r.MarkEmbedded(ctx, second.ID, 2))
	require.NoError(t, r.MarkError(ctx, third.ID, "boom"))

	pending, err := r.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)
}

func TestGetByHashAndExists(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	doc, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/a.txt", Content: []byte("content")})
	require.NoError(t, err)

	got, err := r.GetByHash(ctx, doc.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	ok, err := r.ExistsByHash(ctx, doc.ContentHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ExistsByHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAndStatusCounts(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/a.txt", Content: []byte("a")})
	require.NoError(t, err)
	b, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/b.txt", Content: []byte("b")})
	require.NoError(t, err)
	_, _, err = r.Register(ctx, RegisterRequest{Path: "/docs/c.txt", Content: []byte("c")})
	require.NoError(t, err)

	require.NoError(t, r.MarkEmbedded(ctx, a.ID, 3))
	require.NoError(t, r.MarkError(ctx, b.ID, "x"))

	hashes, err := r.Hashes(ctx)
	require.NoError(t, err)
	assert.Len(t, hashes, 3)
	assert.Contains(t, hashes, a.ContentHash)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.Embedded)
	assert.Equal(t, 1, st.Errored)
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	doc, _, err := r.Register(ctx, RegisterRequest{Path: "/docs/a.txt", Content: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, doc.ID))

	_, err = r.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Content can be registered again after removal.
	_, created, err := r.Register(ctx, RegisterRequest{Path: "/docs/a.txt", Content: []byte("a")})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestIntegrity(t *testing.T) {
	r := newTestRegistry(t)
	assert.NoError(t, r.Integrity(context.Background()))
}
