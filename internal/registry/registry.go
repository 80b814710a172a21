// Package registry persists the document registry for a project in SQLite.
//
// The registry is the source of truth for which documents belong to the
// corpus. Documents are content-addressed: the SHA-256 hash of the document
// bytes identifies it, so registering the same content twice is a no-op and
// the vector index can be reconciled against the registry at any time.
package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Document statuses.
const (
	StatusPending  = "pending"
	StatusEmbedded = "embedded"
	StatusError    = "error"
)

// Sentinel errors.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidRequest indicates a malformed register request.
	ErrInvalidRequest = errors.New("invalid register request")
)

// Document is one registry record.
type Document struct {
	ID          int64
	ContentHash string
	Path        string
	Filename    string
	DocType     string
	Year        int
	Citation    string
	ChunkCount  int
	Status      string
	LastError   string
	AddedAt     time.Time
}

// RegisterRequest describes a document to add to the registry.
type RegisterRequest struct {
	Path     string
	DocType  string
	Year     int
	Citation string

	// Content is the document bytes; its SHA-256 hash is the identity.
	Content []byte
}

// SyncStatus summarizes registry state against the vector index.
type SyncStatus struct {
	Total      int
	Pending    int
	Embedded   int
	Errored    int
	IndexCount int
}

// Registry is a SQLite-backed document registry. One database per project.
type Registry struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash TEXT NOT NULL UNIQUE,
	path         TEXT NOT NULL,
	filename     TEXT NOT NULL,
	doc_type     TEXT NOT NULL DEFAULT '',
	year         INTEGER NOT NULL DEFAULT 0,
	citation     TEXT NOT NULL DEFAULT '',
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'pending',
	last_error   TEXT NOT NULL DEFAULT '',
	added_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

// Open opens (creating if necessary) the registry database at path.
// WAL mode and a busy timeout keep concurrent readers from tripping over the
// single writer.
func Open(path string) (*Registry, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	// SQLite supports one writer; more connections just contend.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying registry schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Hash returns the hex-encoded SHA-256 content hash for document bytes.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Register adds a document. If a document with the same content hash already
// exists, the existing record is returned with created=false and nothing is
// written.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (doc *Document, created bool, err error) {
	if req.Path == "" {
		return nil, false, fmt.Errorf("%w: path required", ErrInvalidRequest)
	}
	if len(req.Content) == 0 {
		return nil, false, fmt.Errorf("%w: content required", ErrInvalidRequest)
	}

	hash := Hash(req.Content)

	existing, err := r.GetByHash(ctx, hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	filename := filepath.Base(req.Path)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (content_hash, path, filename, doc_type, year, citation, status, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hash, req.Path, filename, req.DocType, req.Year, req.Citation, StatusPending, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("inserting document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("reading insert id: %w", err)
	}

	doc, err = r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Get returns the document with the given id.
func (r *Registry) Get(ctx context.Context, id int64) (*Document, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM documents WHERE id = ?`, id)
}

// GetByHash returns the document with the given content hash.
func (r *Registry) GetByHash(ctx context.Context, hash string) (*Document, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM documents WHERE content_hash = ?`, hash)
}

// ExistsByHash reports whether a document with the given content hash exists.
func (r *Registry) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE content_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking content hash: %w", err)
	}
	return n > 0, nil
}

// MarkEmbedded transitions a document to the embedded status and records its
// chunk count. Idempotent.
func (r *Registry) MarkEmbedded(ctx context.Context, id int64, chunkCount int) error {
	return r.update(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, last_error = '' WHERE id = ?`,
		StatusEmbedded, chunkCount, id)
}

// MarkError transitions a document to the error status with a reason. The
// document remains eligible for retry on the next sync. Idempotent.
func (r *Registry) MarkError(ctx context.Context, id int64, reason string) error {
	return r.update(ctx,
		`UPDATE documents SET status = ?, last_error = ? WHERE id = ?`,
		StatusError, reason, id)
}

// MarkPending resets a document to pending, clearing any previous error.
func (r *Registry) MarkPending(ctx context.Context, id int64) error {
	return r.update(ctx,
		`UPDATE documents SET status = ?, last_error = '' WHERE id = ?`,
		StatusPending, id)
}

// Remove deletes a document record. Callers that have not already deleted
// the document's vector points should run an orphan cleanup afterwards.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// ListPending returns documents awaiting embedding, in insertion order.
// Errored documents are included so failed syncs retry next run.
func (r *Registry) ListPending(ctx context.Context) ([]Document, error) {
	return r.queryMany(ctx,
		`SELECT `+columns+` FROM documents WHERE status IN (?, ?) ORDER BY id`,
		StatusPending, StatusError)
}

// ListByStatus returns documents with the given status, in insertion order.
func (r *Registry) ListByStatus(ctx context.Context, status string) ([]Document, error) {
	return r.queryMany(ctx,
		`SELECT `+columns+` FROM documents WHERE status = ? ORDER BY id`, status)
}

// ListAll returns every document in insertion order.
func (r *Registry) ListAll(ctx context.Context) ([]Document, error) {
	return r.queryMany(ctx, `SELECT `+columns+` FROM documents ORDER BY id`)
}

// Hashes returns the set of all registered content hashes.
func (r *Registry) Hashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT content_hash FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("listing content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning content hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

// Status returns registry-side counts for a sync status summary.
func (r *Registry) Status(ctx context.Context) (*SyncStatus, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	st := &SyncStatus{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		st.Total += n
		switch status {
		case StatusPending:
			st.Pending = n
		case StatusEmbedded:
			st.Embedded = n
		case StatusError:
			st.Errored = n
		}
	}
	return st, rows.Err()
}

// Integrity runs a consistency pass over the registry, clearing states that
// cannot survive a process restart. Documents left mid-sync stay pending or
// errored and are simply picked up by the next sync, so the pass only has to
// verify the database itself is readable.
func (r *Registry) Integrity(ctx context.Context) error {
	var result string
	if err := r.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

const columns = `id, content_hash, path, filename, doc_type, year, citation, chunk_count, status, last_error, added_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.ContentHash, &d.Path, &d.Filename, &d.DocType, &d.Year,
		&d.Citation, &d.ChunkCount, &d.Status, &d.LastError, &d.AddedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Registry) queryOne(ctx context.Context, query string, args ...any) (*Document, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return doc, nil
}

func (r *Registry) queryMany(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *Registry) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
