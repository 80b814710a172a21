package vectorstore

import (
	"strconv"

	"github.com/google/uuid"
)

// Payload keys written by the sync engine. Legacy collections may carry the
// same facts under nested shapes; readers should go through PayloadString /
// ContentHash rather than indexing the map directly.
const (
	FieldContentHash  = "content_hash"
	FieldPath         = "path"
	FieldFilename     = "filename"
	FieldDocumentType = "document_type"
	FieldYear         = "year"
	FieldCitation     = "citation"
	FieldChunkText    = "chunk_text"
	FieldChunkIndex   = "chunk_index"
)

// pointNamespace seeds deterministic point id generation. Changing it would
// orphan every existing point, so it is fixed forever.
var pointNamespace = uuid.MustParse("6f1c9d2e-4b4a-4f7e-9b0a-3d8a5c2e1f00")

// PointID derives the deterministic id for a chunk from its document content
// hash and chunk ordinal. Re-embedding the same content always targets the
// same points, which makes upserts idempotent.
func PointID(contentHash string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(contentHash+":"+strconv.Itoa(chunkIndex))).String()
}

// Point is a vector with its payload, addressed by a stable id.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	Point
	Score float32
}

// Page is one scroll window over a collection. NextCursor is empty when the
// scan is exhausted.
type Page struct {
	Points     []Point
	NextCursor string
}

// PayloadString returns the string value stored under key, looking through
// the flat payload only. Missing or non-string values yield "".
func PayloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// PayloadInt returns the integer value stored under key, accepting the
// numeric types payload decoding can produce.
func PayloadInt(payload map[string]any, key string) (int, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// ContentHash extracts a document content hash from a payload, checking the
// current flat shape first and then the nested shapes older ingesters wrote
// ({"metadata": {"content_hash": ...}} and {"source": {"hash": ...}}).
// Returns "" when no hash is present under any known shape.
func ContentHash(payload map[string]any) string {
	if h := PayloadString(payload, FieldContentHash); h != "" {
		return h
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		if h := PayloadString(meta, FieldContentHash); h != "" {
			return h
		}
	}
	if src, ok := payload["source"].(map[string]any); ok {
		if h := PayloadString(src, "hash"); h != "" {
			return h
		}
	}
	return ""
}
