package reconciler

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// Confidence grades how certain a matcher is that a point belongs to a
// document. Deletion reports matches per tier so weak matches are auditable.
type Confidence int

const (
	// ConfidenceExact means the point is identified by content hash or
	// full path equality.
	ConfidenceExact Confidence = iota

	// ConfidenceStrong means the point matched on filename, which can
	// collide across directories.
	ConfidenceStrong

	// ConfidenceWeak means the point matched only by substring search
	// over its stringified payload, the last resort for legacy points.
	ConfidenceWeak
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "exact"
	case ConfidenceStrong:
		return "strong"
	case ConfidenceWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// Matcher decides whether an index point belongs to a registry document.
// Matchers run in order; the first match claims the point.
type Matcher interface {
	Name() string
	Confidence() Confidence
	Matches(doc *registry.Document, payload map[string]any) bool
}

// DefaultMatchers returns the matcher chain in priority order: content hash,
// exact path, filename, then payload substring. The substring matcher exists
// for points written by older ingesters whose payloads nest the identifying
// fields under metadata or source objects.
func DefaultMatchers() []Matcher {
	return []Matcher{
		hashMatcher{},
		pathMatcher{},
		filenameMatcher{},
		substringMatcher{},
	}
}

type hashMatcher struct{}

func (hashMatcher) Name() string           { return "content_hash" }
func (hashMatcher) Confidence() Confidence { return ConfidenceExact }

func (hashMatcher) Matches(doc *registry.Document, payload map[string]any) bool {
	h := vectorstore.ContentHash(payload)
	return h != "" && h == doc.ContentHash
}

type pathMatcher struct{}

func (pathMatcher) Name() string           { return "path" }
func (pathMatcher) Confidence() Confidence { return ConfidenceExact }

func (pathMatcher) Matches(doc *registry.Document, payload map[string]any) bool {
	p := vectorstore.PayloadString(payload, vectorstore.FieldPath)
	return p != "" && p == doc.Path
}

type filenameMatcher struct{}

func (filenameMatcher) Name() string           { return "filename" }
func (filenameMatcher) Confidence() Confidence { return ConfidenceStrong }

func (filenameMatcher) Matches(doc *registry.Document, payload map[string]any) bool {
	f := vectorstore.PayloadString(payload, vectorstore.FieldFilename)
	return f != "" && f == doc.Filename
}

type substringMatcher struct{}

func (substringMatcher) Name() string           { return "payload_substring" }
func (substringMatcher) Confidence() Confidence { return ConfidenceWeak }

func (substringMatcher) Matches(doc *registry.Document, payload map[string]any) bool {
	if len(payload) == 0 {
		return false
	}
	blob := fmt.Sprintf("%v", payload)
	if doc.ContentHash != "" && strings.Contains(blob, doc.ContentHash) {
		return true
	}
	return doc.Path != "" && strings.Contains(blob, doc.Path)
}
