// Package retrieval plans and executes corpus queries: it classifies query
// complexity to size the candidate pool, searches the vector index under
// typed filters, optionally reranks, and extracts citations.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/citations"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/project"
	"github.com/fyrsmithlabs/corpusd/internal/reranker"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// ErrEmptyQuery indicates a blank query string.
var ErrEmptyQuery = errors.New("query cannot be empty")

// PlannerConfig tunes the retrieval planner.
type PlannerConfig struct {
	// BaseK is the candidate count for low-complexity queries.
	BaseK int

	// MaxK caps the candidate count after complexity scaling.
	MaxK int

	// DocTypes lists the document types accepted in filters. Empty
	// disables the check.
	DocTypes []string
}

// ApplyDefaults sets default values for unset fields.
func (c *PlannerConfig) ApplyDefaults() {
	if c.BaseK == 0 {
		c.BaseK = 5
	}
	if c.MaxK == 0 {
		c.MaxK = 25
	}
}

// Match is one retrieved chunk.
type Match struct {
	ContentHash string
	Path        string
	Filename    string
	DocType     string
	Year        int
	Citation    string
	ChunkText   string
	ChunkIndex  int
	Score       float32
	Rank        int
}

// Result is the outcome of one query.
type Result struct {
	Matches    []Match
	Citations  []string
	K          int
	Complexity string
}

// Planner executes queries against a project's collection. Queries take no
// project writer lock and may run at any concurrency, including while a
// sync is in flight.
type Planner struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	reranker reranker.Reranker
	cfg      PlannerConfig
	logger   *zap.Logger
}

// New creates a Planner. The reranker is optional; pass nil to return
// vector search order.
func New(store vectorstore.Store, embedder embeddings.Embedder, rr reranker.Reranker, cfg PlannerConfig, logger *zap.Logger) *Planner {
	cfg.ApplyDefaults()
	return &Planner{
		store:    store,
		embedder: embedder,
		reranker: rr,
		cfg:      cfg,
		logger:   logger.Named("retrieval"),
	}
}

// Query retrieves the best chunks for a query. kHint overrides the
// complexity-derived candidate count when positive, still capped at MaxK.
// An empty result set is a valid outcome, not an error.
func (p *Planner) Query(ctx context.Context, h *project.Handle, text string, filter *vectorstore.Filter, kHint int) (*Result, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if err := p.validateFilter(filter); err != nil {
		return nil, err
	}

	complexity := Classify(text)
	k := KFor(complexity, p.cfg.BaseK, p.cfg.MaxK)
	if kHint > 0 {
		k = kHint
		if p.cfg.MaxK > 0 && k > p.cfg.MaxK {
			k = p.cfg.MaxK
		}
	}

	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := p.store.Search(ctx, h.Collection(), vector, filter, k)
	if err != nil {
		// A project queried before its first sync has no collection yet;
		// that is an empty corpus, not a failure.
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			hits = nil
		} else {
			return nil, fmt.Errorf("searching collection: %w", err)
		}
	}

	matches := make([]Match, len(hits))
	for i, hit := range hits {
		matches[i] = matchFromPayload(hit)
		matches[i].Rank = i
	}

	if p.reranker != nil && len(matches) > 0 {
		matches, err = p.rerank(ctx, text, matches)
		if err != nil {
			return nil, fmt.Errorf("reranking: %w", err)
		}
	}

	result := &Result{
		Matches:    matches,
		Citations:  extractCitations(matches),
		K:          k,
		Complexity: complexity.String(),
	}

	p.logger.Debug("query executed",
		zap.String("project", h.Name()),
		zap.String("complexity", result.Complexity),
		zap.Int("k", k),
		zap.Int("matches", len(matches)))
	return result, nil
}

func (p *Planner) validateFilter(filter *vectorstore.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if filter == nil || len(p.cfg.DocTypes) == 0 {
		return nil
	}
	for _, dt := range filter.DocTypes {
		known := false
		for _, want := range p.cfg.DocTypes {
			if dt == want {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown document type %q", vectorstore.ErrInvalidFilter, dt)
		}
	}
	return nil
}

// rerank reorders matches through the configured reranker. The reranker is
// stable, so ties keep vector search order; ranks are reassigned to the new
// order.
func (p *Planner) rerank(ctx context.Context, query string, matches []Match) ([]Match, error) {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.ChunkText
	}

	indices, err := p.reranker.Rerank(ctx, query, texts, len(matches))
	if err != nil {
		return nil, err
	}

	reranked := make([]Match, len(indices))
	for i, idx := range indices {
		reranked[i] = matches[idx]
		reranked[i].Rank = i
	}
	return reranked, nil
}

func matchFromPayload(hit vectorstore.ScoredPoint) Match {
	m := Match{
		ContentHash: vectorstore.PayloadString(hit.Payload, vectorstore.FieldContentHash),
		Path:        vectorstore.PayloadString(hit.Payload, vectorstore.FieldPath),
		Filename:    vectorstore.PayloadString(hit.Payload, vectorstore.FieldFilename),
		DocType:     vectorstore.PayloadString(hit.Payload, vectorstore.FieldDocumentType),
		Citation:    vectorstore.PayloadString(hit.Payload, vectorstore.FieldCitation),
		ChunkText:   vectorstore.PayloadString(hit.Payload, vectorstore.FieldChunkText),
		Score:       hit.Score,
	}
	if year, ok := vectorstore.PayloadInt(hit.Payload, vectorstore.FieldYear); ok {
		m.Year = year
	}
	if idx, ok := vectorstore.PayloadInt(hit.Payload, vectorstore.FieldChunkIndex); ok {
		m.ChunkIndex = idx
	}
	return m
}

func extractCitations(matches []Match) []string {
	chunks := make([]citations.Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = citations.Chunk{Citation: m.Citation, Text: m.ChunkText}
	}
	return citations.Extract(chunks)
}
