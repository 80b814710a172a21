package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store with the same semantics as QdrantStore:
// idempotent upserts keyed by point id, cursor-based scrolling, typed filters
// and cosine-scored search. It backs tests and the no-index development mode.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
	sizes       map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Point),
		sizes:       make(map[string]int),
	}
}

// EnsureCollection creates the collection if it does not exist.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string]Point)
		s.sizes[collection] = vectorSize
	}
	return nil
}

// Upsert writes points, overwriting existing points with the same ids.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

// Search returns the limit nearest points by cosine similarity.
func (s *MemoryStore) Search(_ context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidFilter, limit)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	hits := make([]ScoredPoint, 0, len(coll))
	for _, p := range coll {
		if !filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, ScoredPoint{Point: p, Score: cosine(vector, p.Vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Scroll pages through the collection in point id order. The cursor is the
// id of the last point returned; pages remain stable across interleaved
// upserts of already-seen ids.
func (s *MemoryStore) Scroll(_ context.Context, collection string, limit int, cursor string) (*Page, error) {
	if limit <= 0 {
		limit = 256
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	ids := make([]string, 0, len(coll))
	for id := range coll {
		if cursor == "" || id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &Page{}
	for _, id := range ids {
		if len(page.Points) == limit {
			page.NextCursor = page.Points[len(page.Points)-1].ID
			break
		}
		page.Points = append(page.Points, coll[id])
	}
	return page, nil
}

// DeletePoints removes points by id. Unknown ids are ignored.
func (s *MemoryStore) DeletePoints(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

// Count returns the number of points in the collection.
func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return len(coll), nil
}

// DropCollection removes the collection and every point in it.
func (s *MemoryStore) DropCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	delete(s.sizes, collection)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
