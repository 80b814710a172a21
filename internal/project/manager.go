// Package project manages per-project connection handles.
//
// Each project owns a SQLite registry database and one vector index
// collection. Handles are acquired and released explicitly; there is no
// implicit current project. A handle carries the project's writer lock:
// sync, delete and orphan cleanup are mutually exclusive per project, while
// queries run without the lock at any concurrency.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/registry"
)

// Sentinel errors.
var (
	// ErrBusy indicates a writer operation is already running for the
	// project. Maps to HTTP 409 at the API boundary.
	ErrBusy = errors.New("project busy: another write operation is in progress")

	// ErrProjectNotFound indicates no handle is held for the project.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidName indicates a project name outside the allowed set.
	ErrInvalidName = errors.New("invalid project name")
)

// projectNamePattern bounds names to filesystem- and collection-safe forms.
var projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Handle is an acquired project: its registry connection, its collection
// name and its writer lock.
type Handle struct {
	name       string
	collection string
	reg        *registry.Registry

	writer sync.Mutex
	refs   int
}

// Name returns the project name.
func (h *Handle) Name() string { return h.name }

// Collection returns the project's vector index collection name.
func (h *Handle) Collection() string { return h.collection }

// Registry returns the project's document registry.
func (h *Handle) Registry() *registry.Registry { return h.reg }

// TryLockWriter acquires the project writer lock without blocking. Returns
// ErrBusy when a sync, delete or cleanup already holds it.
func (h *Handle) TryLockWriter() error {
	if !h.writer.TryLock() {
		return fmt.Errorf("%w: project %s", ErrBusy, h.name)
	}
	return nil
}

// UnlockWriter releases the writer lock.
func (h *Handle) UnlockWriter() {
	h.writer.Unlock()
}

// Manager owns project handles. Acquire and Release are reference counted:
// a handle's registry connection closes only after its last release.
type Manager struct {
	root   string
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a Manager storing project state under root.
func NewManager(root string, logger *zap.Logger) *Manager {
	return &Manager{
		root:    root,
		logger:  logger.Named("project"),
		handles: make(map[string]*Handle),
	}
}

// Acquire opens (or reuses) the handle for a project, creating its state
// directory and registry database on first use. A recovery pass verifies the
// registry on every fresh open; documents left mid-sync by a crash simply
// stay pending and are picked up by the next sync, so no lock files need
// clearing.
func (m *Manager) Acquire(ctx context.Context, name string) (*Handle, error) {
	if !projectNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[name]; ok {
		h.refs++
		return h, nil
	}

	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating project directory: %w", err)
	}

	reg, err := registry.Open(filepath.Join(dir, name+".sqlite"))
	if err != nil {
		return nil, fmt.Errorf("opening project registry: %w", err)
	}

	if err := reg.Integrity(ctx); err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("project %s registry unusable: %w", name, err)
	}

	h := &Handle{
		name:       name,
		collection: CollectionName(name),
		reg:        reg,
		refs:       1,
	}
	m.handles[name] = h

	m.logger.Info("project acquired",
		zap.String("project", name),
		zap.String("collection", h.collection))
	return h, nil
}

// Release drops one reference to a project handle, closing its registry
// when no references remain.
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}

	h.refs--
	if h.refs > 0 {
		return nil
	}

	delete(m.handles, name)
	m.logger.Info("project released", zap.String("project", name))
	return h.reg.Close()
}

// Close releases every open handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, h := range m.handles {
		if err := h.reg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing project %s: %w", name, err))
		}
		delete(m.handles, name)
	}
	return errors.Join(errs...)
}

// CollectionName derives the vector index collection name for a project.
// Names are folded into the collection character set [a-z0-9_].
func CollectionName(project string) string {
	folded := strings.ToLower(project)
	folded = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, folded)
	return "corpus_" + folded
}
