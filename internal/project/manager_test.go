package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/registry"
)

func registryRegisterRequest(path, content string) registry.RegisterRequest {
	return registry.RegisterRequest{Path: path, Content: []byte(content)}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestAcquireCreatesProject(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", h.Name())
	assert.Equal(t, "corpus_alpha", h.Collection())
	assert.NotNil(t, h.Registry())
}

func TestAcquireReusesHandle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)
	second, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Two references: the first release keeps the handle alive.
	require.NoError(t, m.Release("alpha"))
	_, err = first.Registry().ListAll(ctx)
	assert.NoError(t, err)

	require.NoError(t, m.Release("alpha"))
}

func TestReleaseUnknownProject(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Release("ghost"), ErrProjectNotFound)
}

func TestAcquireInvalidName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"", "has space", "../escape", "-leading", "über"} {
		_, err := m.Acquire(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestWriterLock(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)

	require.NoError(t, h.TryLockWriter())
	assert.ErrorIs(t, h.TryLockWriter(), ErrBusy)

	h.UnlockWriter()
	assert.NoError(t, h.TryLockWriter())
	h.UnlockWriter()
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{project: "alpha", want: "corpus_alpha"},
		{project: "Alpha-Beta", want: "corpus_alpha_beta"},
		{project: "proj_1", want: "corpus_proj_1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CollectionName(tt.project))
	}
}

func TestRegistryPersistsAcrossAcquires(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)

	_, _, err = h.Registry().Register(ctx, registryRegisterRequest("/docs/a.txt", "body"))
	require.NoError(t, err)
	require.NoError(t, m.Release("alpha"))

	h, err = m.Acquire(ctx, "alpha")
	require.NoError(t, err)
	docs, err := h.Registry().ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
