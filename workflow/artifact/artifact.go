// Package artifact implements the claim-check artifact store of spec §6.3: large
// step payloads are written here and replaced in events by a content-addressed
// Uri, keeping the event log small.
//
// Grounded on the teacher's graph/store/sqlite.go: single-writer SQLite with WAL
// mode, auto-migrated schema, content addressing reusing the same SHA-256 scheme
// as checkpoint.go's idempotency key.
package artifact

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Retrieve when uri names no stored artifact, per spec
// §6.3 ("fails with NotFound if absent").
var ErrNotFound = errors.New("artifact: not found")

// Uri identifies a stored artifact: category-prefixed content address.
type Uri string

func newUri(category string, content []byte) Uri {
	sum := sha256.Sum256(content)
	return Uri(fmt.Sprintf("artifact://%s/%s", category, hex.EncodeToString(sum[:])))
}

// Store is a SQLite-backed claim-check artifact store. Type parameter T is the
// serialized-as-bytes payload shape; callers are responsible for marshaling
// before Store and unmarshaling after Retrieve, mirroring the teacher's
// JSON-text-column convention.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (and migrates) a SQLite-backed artifact store at path. Use ":memory:"
// for an ephemeral store in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifact: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("artifact: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("artifact: set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			uri TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			content BLOB NOT NULL,
			owner_workflow_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Store writes content under category, owned by workflowID, and returns its
// content-addressed Uri. Writes are durable on return (no WAL checkpoint
// deferral), per spec §6.3 ("writes are durable on return").
func (s *Store) Store(ctx context.Context, workflowID, category string, content []byte) (Uri, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("artifact: store is closed")
	}

	uri := newUri(category, content)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (uri, category, content, owner_workflow_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(uri) DO NOTHING`,
		string(uri), category, content, workflowID)
	if err != nil {
		return "", fmt.Errorf("artifact: store: %w", err)
	}
	return uri, nil
}

// Retrieve reads back the content stored under uri.
func (s *Store) Retrieve(ctx context.Context, uri Uri) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("artifact: store is closed")
	}

	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM artifacts WHERE uri = ?`, string(uri)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifact: retrieve: %w", err)
	}
	return content, nil
}

// Delete removes the artifact at uri. Idempotent: deleting an absent artifact is
// not an error, per spec §3.6 ("deletion is idempotent").
func (s *Store) Delete(ctx context.Context, uri Uri) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("artifact: store is closed")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE uri = ?`, string(uri))
	if err != nil {
		return fmt.Errorf("artifact: delete: %w", err)
	}
	return nil
}

// DeleteByWorkflow removes every artifact owned by workflowID, used when an
// instance completes and its transient artifacts are no longer needed.
func (s *Store) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("artifact: store is closed")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE owner_workflow_id = ?`, workflowID)
	if err != nil {
		return fmt.Errorf("artifact: delete by workflow: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
