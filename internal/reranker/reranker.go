// Package reranker reorders retrieval candidates by relevance to the query.
package reranker

import (
	"context"
	"sort"
	"strings"
)

// Reranker reorders candidate texts by relevance to a query. Rerank returns
// candidate indices in rank order, at most topK of them. Implementations
// must be stable: candidates it cannot distinguish keep their original
// relative order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string, topK int) ([]int, error)
}

// SimpleReranker scores candidates by term overlap with the query. It is a
// cheap lexical pass over the vector search output, useful when a neural
// reranker is not deployed.
type SimpleReranker struct{}

// NewSimpleReranker creates a SimpleReranker.
func NewSimpleReranker() *SimpleReranker {
	return &SimpleReranker{}
}

// Rerank scores each candidate by the fraction of query terms it contains
// and returns indices in descending score order. Ties keep the original
// vector search order.
func (r *SimpleReranker) Rerank(_ context.Context, query string, candidates []string, topK int) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	queryTerms := terms(query)

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scored{index: i, score: overlap(queryTerms, terms(c))}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	indices := make([]int, len(ranked))
	for i, s := range ranked {
		indices[i] = s.index
	}
	return indices, nil
}

func terms(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// Ensure SimpleReranker implements Reranker.
var _ Reranker = (*SimpleReranker)(nil)
