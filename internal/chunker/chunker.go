// Package chunker splits document text into ordered, overlapping segments.
//
// Splitting is deterministic: identical input always yields identical chunk
// boundaries and count. Vector point identity is derived from the document
// content hash plus the chunk ordinal, so any change to the boundary math
// changes point ids across the whole index.
package chunker

import (
	"errors"
	"fmt"
)

// Default chunking parameters, sized for sentence-level retrieval granularity.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// ErrInvalidChunking indicates invalid chunk size or overlap configuration.
var ErrInvalidChunking = errors.New("invalid chunking configuration")

// Chunk is a contiguous text segment of a document.
type Chunk struct {
	// Index is the ordinal position of the chunk within its document.
	Index int

	// Text is the chunk content.
	Text string
}

// Splitter produces fixed-size overlapping chunks from document text.
type Splitter struct {
	chunkSize int
	overlap   int
}

// New creates a Splitter. Overlap must be smaller than chunkSize.
func New(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidChunking, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunking, overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured chunk size in runes.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks text into fixed windows of chunkSize runes, each window
// starting chunkSize-overlap runes after the previous one. The final chunk
// may be shorter than chunkSize. Empty text produces no chunks.
//
// Windows are computed over runes rather than bytes so multi-byte text never
// splits inside a character.
func (s *Splitter) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := s.chunkSize - s.overlap

	chunks := make([]Chunk, 0, len(runes)/step+1)
	for start, index := 0, 0; start < len(runes); start, index = start+step, index+1 {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Index: index, Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
