package retrieval

import "strings"

// Complexity classifies how much evidence a query likely needs.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityMedium:
		return "medium"
	case ComplexityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// whWords signal sub-questions when several appear in one query.
var whWords = []string{"what", "why", "how", "when", "where", "which", "who"}

// Classify estimates query complexity from surface signals: length,
// multiple question marks, and clause conjunctions. The classification only
// scales the candidate pool, so coarse heuristics are enough.
func Classify(query string) Complexity {
	lower := strings.ToLower(query)
	tokens := strings.Fields(lower)

	score := 0

	switch {
	case len(tokens) > 20:
		score += 2
	case len(tokens) > 10:
		score++
	}

	if strings.Count(query, "?") > 1 {
		score += 2
	}

	conjunctions := strings.Count(lower, " and ") + strings.Count(lower, " or ") + strings.Count(lower, ";")
	if conjunctions > 2 {
		conjunctions = 2
	}
	score += conjunctions

	wh := 0
	for _, w := range whWords {
		wh += countWord(tokens, w)
	}
	if wh >= 2 {
		score++
	}

	switch {
	case score >= 4:
		return ComplexityHigh
	case score >= 2:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// KFor scales the base candidate count by complexity, capped at maxK.
// Low keeps baseK, medium doubles it, high triples it.
func KFor(c Complexity, baseK, maxK int) int {
	k := baseK
	switch c {
	case ComplexityMedium:
		k = baseK * 2
	case ComplexityHigh:
		k = baseK * 3
	}
	if maxK > 0 && k > maxK {
		k = maxK
	}
	return k
}

func countWord(tokens []string, word string) int {
	n := 0
	for _, t := range tokens {
		if strings.Trim(t, ".,;:!?\"'") == word {
			n++
		}
	}
	return n
}
