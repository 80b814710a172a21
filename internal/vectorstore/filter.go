package vectorstore

import (
	"errors"
	"fmt"
)

// ErrInvalidFilter indicates a structurally invalid search filter.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter restricts a search to documents matching metadata criteria.
// DocTypes is an OR set over the document_type payload field; YearFrom and
// YearTo bound the year field inclusively, each side optional.
type Filter struct {
	DocTypes []string
	YearFrom *int
	YearTo   *int
}

// IsZero reports whether the filter constrains nothing.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.DocTypes) == 0 && f.YearFrom == nil && f.YearTo == nil)
}

// Validate checks internal consistency. Empty doc type entries and inverted
// year ranges are rejected.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, dt := range f.DocTypes {
		if dt == "" {
			return fmt.Errorf("%w: empty document type", ErrInvalidFilter)
		}
	}
	if f.YearFrom != nil && f.YearTo != nil && *f.YearFrom > *f.YearTo {
		return fmt.Errorf("%w: year range %d..%d is inverted", ErrInvalidFilter, *f.YearFrom, *f.YearTo)
	}
	return nil
}

// Matches reports whether a payload satisfies the filter. Used by the
// in-memory store; the Qdrant implementation pushes the same predicate into
// the index as a native filter.
func (f *Filter) Matches(payload map[string]any) bool {
	if f.IsZero() {
		return true
	}
	if len(f.DocTypes) > 0 {
		dt := PayloadString(payload, FieldDocumentType)
		found := false
		for _, want := range f.DocTypes {
			if dt == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.YearFrom != nil || f.YearTo != nil {
		year, ok := PayloadInt(payload, FieldYear)
		if !ok {
			return false
		}
		if f.YearFrom != nil && year < *f.YearFrom {
			return false
		}
		if f.YearTo != nil && year > *f.YearTo {
			return false
		}
	}
	return true
}
