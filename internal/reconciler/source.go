package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/corpusd/internal/registry"
)

// ErrSourceUnavailable indicates document text could not be loaded.
var ErrSourceUnavailable = errors.New("document source unavailable")

// Source loads the current text of a registered document. Chunks are never
// persisted; sync re-chunks from source text every run, so resuming after a
// failure needs nothing beyond the registry record.
type Source interface {
	Load(ctx context.Context, doc *registry.Document) (string, error)
}

// FileSource loads document text from the path recorded at registration.
type FileSource struct{}

// Load reads the file at doc.Path.
func (FileSource) Load(_ context.Context, doc *registry.Document) (string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return string(data), nil
}

// Ensure FileSource implements Source.
var _ Source = FileSource{}
