// Package reconciler keeps a project's vector index consistent with its
// document registry.
//
// The registry is the source of truth. Sync pushes pending documents into
// the index, Delete removes a document's points under a chain of matcher
// strategies, and CleanOrphans removes points whose document no longer
// exists. All three take the project writer lock; they are idempotent and
// safe to re-run after any failure because point ids derive from content.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/project"
	"github.com/fyrsmithlabs/corpusd/internal/registry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// scrollPageSize is the page size for whole-collection scans.
const scrollPageSize = 256

// Config tunes the reconciler's embedding pipeline.
type Config struct {
	// BatchSize is the number of chunks per embedding request.
	BatchSize int

	// MaxInFlight bounds concurrent embedding batches per document.
	MaxInFlight int

	// MaxRetries is the retry budget per embedding batch.
	MaxRetries int

	// RetryBackoff is the initial per-batch backoff, doubled on each retry.
	RetryBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 4
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// DocumentOutcome is the per-document result of a sync run.
type DocumentOutcome struct {
	DocumentID int64
	Path       string
	Status     string
	Chunks     int
	Err        string
}

// SyncResult aggregates a sync run.
type SyncResult struct {
	Synced    int
	Failed    int
	Outcomes  []DocumentOutcome
	StartedAt time.Time
	Duration  time.Duration
}

// ConsistencyWarning reports a non-fatal mismatch between the number of
// points a delete matched and the number the registry expected.
type ConsistencyWarning struct {
	Expected int
	Matched  int
}

func (w *ConsistencyWarning) String() string {
	return fmt.Sprintf("expected %d chunks but matched %d points", w.Expected, w.Matched)
}

// DeleteResult reports a document deletion.
type DeleteResult struct {
	DocumentID     int64
	Matched        int
	Deleted        int
	ExpectedChunks int
	ByConfidence   map[string]int
	Warning        *ConsistencyWarning
}

// CleanResult reports an orphan cleanup pass.
type CleanResult struct {
	Scanned      int
	Deleted      int
	Unidentified int
}

// Reconciler drives sync, deletion and orphan cleanup for projects.
type Reconciler struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	splitter *chunker.Splitter
	source   Source
	matchers []Matcher
	cfg      Config
	logger   *zap.Logger
}

// New creates a Reconciler.
func New(store vectorstore.Store, embedder embeddings.Embedder, splitter *chunker.Splitter, source Source, cfg Config, logger *zap.Logger) *Reconciler {
	cfg.ApplyDefaults()
	if source == nil {
		source = FileSource{}
	}
	return &Reconciler{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		source:   source,
		matchers: DefaultMatchers(),
		cfg:      cfg,
		logger:   logger.Named("reconciler"),
	}
}

// Sync embeds every pending or previously errored document into the
// project's collection. Documents are processed sequentially; one document's
// failure marks it errored and moves on. Cancellation is honored between
// documents, and a document's points are upserted in a single call only
// after all its batches embedded, so a canceled run never leaves a document
// partially indexed.
func (r *Reconciler) Sync(ctx context.Context, h *project.Handle) (*SyncResult, error) {
	if err := h.TryLockWriter(); err != nil {
		return nil, err
	}
	defer h.UnlockWriter()

	start := time.Now()

	if err := r.store.EnsureCollection(ctx, h.Collection(), r.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	pending, err := h.Registry().ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending documents: %w", err)
	}

	result := &SyncResult{StartedAt: start}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("sync canceled: %w", err)
		}

		doc := &pending[i]
		chunks, err := r.syncDocument(ctx, h, doc)
		outcome := DocumentOutcome{DocumentID: doc.ID, Path: doc.Path, Chunks: chunks}
		if err != nil {
			outcome.Status = registry.StatusError
			outcome.Err = err.Error()
			result.Failed++
			r.logger.Warn("document sync failed",
				zap.String("project", h.Name()),
				zap.Int64("document_id", doc.ID),
				zap.String("path", doc.Path),
				zap.Error(err))
			if merr := h.Registry().MarkError(ctx, doc.ID, err.Error()); merr != nil {
				r.logger.Error("failed to record document error", zap.Int64("document_id", doc.ID), zap.Error(merr))
			}
		} else {
			outcome.Status = registry.StatusEmbedded
			result.Synced++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	result.Duration = time.Since(start)
	r.logger.Info("sync complete",
		zap.String("project", h.Name()),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// syncDocument chunks, embeds and upserts one document, then marks it
// embedded. Returns the chunk count.
func (r *Reconciler) syncDocument(ctx context.Context, h *project.Handle, doc *registry.Document) (int, error) {
	text, err := r.source.Load(ctx, doc)
	if err != nil {
		return 0, err
	}

	chunks := r.splitter.Split(text)
	if len(chunks) == 0 {
		// Nothing to index; the registry still records the document.
		if err := h.Registry().MarkEmbedded(ctx, doc.ID, 0); err != nil {
			return 0, fmt.Errorf("marking document embedded: %w", err)
		}
		return 0, nil
	}

	vectors, err := r.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:     vectorstore.PointID(doc.ContentHash, c.Index),
			Vector: vectors[i],
			Payload: map[string]any{
				vectorstore.FieldContentHash:  doc.ContentHash,
				vectorstore.FieldPath:         doc.Path,
				vectorstore.FieldFilename:     doc.Filename,
				vectorstore.FieldDocumentType: doc.DocType,
				vectorstore.FieldYear:         doc.Year,
				vectorstore.FieldCitation:     doc.Citation,
				vectorstore.FieldChunkText:    c.Text,
				vectorstore.FieldChunkIndex:   c.Index,
			},
		}
	}

	if err := r.store.Upsert(ctx, h.Collection(), points); err != nil {
		return 0, fmt.Errorf("upserting points: %w", err)
	}

	if err := h.Registry().MarkEmbedded(ctx, doc.ID, len(chunks)); err != nil {
		return 0, fmt.Errorf("marking document embedded: %w", err)
	}
	return len(chunks), nil
}

// embedChunks embeds chunks in batches with bounded concurrency. Each batch
// retries independently with exponential backoff; a batch's permanent
// failure does not cancel its siblings, so transient errors elsewhere still
// get their full retry budget before the document is declared failed.
func (r *Reconciler) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	batches := (len(chunks) + r.cfg.BatchSize - 1) / r.cfg.BatchSize
	batchErrs := make([]error, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxInFlight)

	for b := 0; b < batches; b++ {
		start := b * r.cfg.BatchSize
		end := start + r.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}

			embs, err := r.embedBatch(gctx, texts)
			if err != nil {
				batchErrs[b] = err
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			}
			copy(vectors[start:end], embs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embedding canceled: %w", err)
	}
	for _, err := range batchErrs {
		if err != nil {
			return nil, fmt.Errorf("embedding batch: %w", err)
		}
	}
	return vectors, nil
}

// embedBatch embeds one batch, retrying transient failures.
func (r *Reconciler) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := r.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		embs, err := r.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			return embs, nil
		}
		lastErr = err

		if !embeddings.IsRetryable(err) {
			return nil, err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", r.cfg.MaxRetries, lastErr)
}

// Delete removes a document's points from the index and its registry
// record. The whole collection is scanned; each point is claimed by the
// first matcher in the chain that recognizes it. A mismatch between matched
// points and the registry's chunk count is reported as a warning, never an
// error: the registry record is removed regardless so deletes cannot wedge.
func (r *Reconciler) Delete(ctx context.Context, h *project.Handle, docID int64) (*DeleteResult, error) {
	if err := h.TryLockWriter(); err != nil {
		return nil, err
	}
	defer h.UnlockWriter()

	doc, err := h.Registry().Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{
		DocumentID:     docID,
		ExpectedChunks: doc.ChunkCount,
		ByConfidence:   make(map[string]int),
	}

	var ids []string
	err = r.scan(ctx, h.Collection(), func(p vectorstore.Point) {
		for _, m := range r.matchers {
			if m.Matches(doc, p.Payload) {
				ids = append(ids, p.ID)
				result.ByConfidence[m.Confidence().String()]++
				if m.Confidence() == ConfidenceWeak {
					r.logger.Debug("weak match during delete",
						zap.String("matcher", m.Name()),
						zap.String("point_id", p.ID))
				}
				break
			}
		}
	})
	if err != nil {
		return nil, err
	}
	result.Matched = len(ids)

	if len(ids) > 0 {
		if err := r.store.DeletePoints(ctx, h.Collection(), ids); err != nil {
			return nil, fmt.Errorf("deleting points: %w", err)
		}
		result.Deleted = len(ids)
	}

	if doc.Status == registry.StatusEmbedded && result.Matched != doc.ChunkCount {
		result.Warning = &ConsistencyWarning{Expected: doc.ChunkCount, Matched: result.Matched}
		r.logger.Warn("delete consistency mismatch",
			zap.String("project", h.Name()),
			zap.Int64("document_id", docID),
			zap.Int("expected", doc.ChunkCount),
			zap.Int("matched", result.Matched))
	}

	if err := h.Registry().Remove(ctx, docID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("removing registry record: %w", err)
	}

	r.logger.Info("document deleted",
		zap.String("project", h.Name()),
		zap.Int64("document_id", docID),
		zap.Int("points_deleted", result.Deleted))
	return result, nil
}

// CleanOrphans deletes points whose content hash has no live registry
// entry. Points carrying no extractable hash under any known payload shape
// are left alone and counted, never guessed at. Idempotent.
func (r *Reconciler) CleanOrphans(ctx context.Context, h *project.Handle) (*CleanResult, error) {
	if err := h.TryLockWriter(); err != nil {
		return nil, err
	}
	defer h.UnlockWriter()

	hashes, err := h.Registry().Hashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing registry hashes: %w", err)
	}

	result := &CleanResult{}
	var orphans []string
	err = r.scan(ctx, h.Collection(), func(p vectorstore.Point) {
		result.Scanned++
		hash := vectorstore.ContentHash(p.Payload)
		if hash == "" {
			result.Unidentified++
			r.logger.Warn("point has no identifiable content hash",
				zap.String("project", h.Name()),
				zap.String("point_id", p.ID))
			return
		}
		if _, ok := hashes[hash]; !ok {
			orphans = append(orphans, p.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	if len(orphans) > 0 {
		if err := r.store.DeletePoints(ctx, h.Collection(), orphans); err != nil {
			return nil, fmt.Errorf("deleting orphan points: %w", err)
		}
		result.Deleted = len(orphans)
	}

	r.logger.Info("orphan cleanup complete",
		zap.String("project", h.Name()),
		zap.Int("scanned", result.Scanned),
		zap.Int("deleted", result.Deleted),
		zap.Int("unidentified", result.Unidentified))
	return result, nil
}

// Status returns the registry counts together with the live index point
// count for a project.
func (r *Reconciler) Status(ctx context.Context, h *project.Handle) (*registry.SyncStatus, error) {
	st, err := h.Registry().Status(ctx)
	if err != nil {
		return nil, err
	}

	count, err := r.store.Count(ctx, h.Collection())
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return st, nil
		}
		return nil, fmt.Errorf("counting index points: %w", err)
	}
	st.IndexCount = count
	return st, nil
}

// scan walks every point in a collection via cursor pagination. A missing
// collection scans as empty: the registry can hold documents before the
// first sync creates the collection.
func (r *Reconciler) scan(ctx context.Context, collection string, visit func(vectorstore.Point)) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.store.Scroll(ctx, collection, scrollPageSize, cursor)
		if err != nil {
			if errors.Is(err, vectorstore.ErrCollectionNotFound) {
				return nil
			}
			return fmt.Errorf("scanning collection: %w", err)
		}
		for _, p := range page.Points {
			visit(p)
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}
