// Package vectorstore provides the vector index client used by the sync and
// retrieval engines. The canonical implementation speaks gRPC to Qdrant; an
// in-memory implementation with identical semantics backs tests and the
// zero-dependency mode.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrUnavailable indicates the index cannot be reached. Callers may
	// retry; the condition maps to HTTP 503 at the API boundary.
	ErrUnavailable = errors.New("vector index unavailable")

	// ErrCollectionNotFound indicates the named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrInvalidCollectionName indicates a collection name outside the
	// allowed character set.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Store is the vector index surface the reconciler and planner depend on.
// Implementations must make Upsert idempotent with respect to point ids and
// must support resumable whole-collection scans via Scroll cursors.
type Store interface {
	// EnsureCollection creates the collection if it does not already
	// exist. Existing collections are left untouched.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// Upsert writes points, overwriting any existing points with the same
	// ids.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the limit nearest points to vector, optionally
	// restricted by filter. An empty result is not an error.
	Search(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error)

	// Scroll returns one page of points with payloads. Pass an empty
	// cursor to start; iterate until Page.NextCursor is empty.
	Scroll(ctx context.Context, collection string, limit int, cursor string) (*Page, error)

	// DeletePoints removes points by id. Unknown ids are ignored.
	DeletePoints(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// DropCollection removes the collection and every point in it.
	DropCollection(ctx context.Context, collection string) error

	// Close releases client resources.
	Close() error
}
