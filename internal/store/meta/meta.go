// Package meta implements the authoritative metadata store on SQLite.
package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

// Store persists memory records in a dedicated SQLite database. It shares
// no transaction boundary with the vector or graph stores.
type Store struct {
	db *sql.DB
}

// Open creates or opens the metadata database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init metadata schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id           TEXT PRIMARY KEY,
		content      TEXT NOT NULL,
		fingerprint  TEXT NOT NULL,
		scope        TEXT NOT NULL,
		category     TEXT,
		tags         TEXT,
		metadata     TEXT,
		state        TEXT NOT NULL DEFAULT 'pending_embed',
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL,
		accessed_at  DATETIME NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_memories_fingerprint ON memories(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or fully replaces a record.
func (s *Store) Put(ctx context.Context, rec *coordinator.MemoryRecord) error {
	tagsJSON, _ := json.Marshal(rec.Tags)
	metaJSON, _ := json.Marshal(rec.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories
			(id, content, fingerprint, scope, category, tags, metadata, state,
			 created_at, updated_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Content, rec.Fingerprint, rec.Scope, rec.Category,
		string(tagsJSON), string(metaJSON), string(rec.State),
		rec.CreatedAt, rec.UpdatedAt, rec.AccessedAt, rec.AccessCount)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

const selectColumns = `id, content, fingerprint, scope, category, tags, metadata, state,
	created_at, updated_at, accessed_at, access_count`

// Get returns the record, coordinator.ErrNotFound when absent, or
// coordinator.ErrStoreUnavailable on a driver failure.
func (s *Store) Get(ctx context.Context, id string) (*coordinator.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", coordinator.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coordinator.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Delete removes the record, returning coordinator.ErrNotFound if absent.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", coordinator.ErrNotFound, id)
	}
	return nil
}

// FindByFingerprint returns the matching record, or (nil, nil) when none.
func (s *Store) FindByFingerprint(ctx context.Context, fp string) (*coordinator.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM memories WHERE fingerprint = ? LIMIT 1`, fp)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListByScopePrefix returns records in the scope and every segment-aligned
// descendant ("work" covers "work/meetings" but not "workshop").
func (s *Store) ListByScopePrefix(ctx context.Context, prefix string) ([]*coordinator.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM memories
		WHERE scope = ? OR scope LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
	`, prefix, likeEscape(prefix)+"/%")
	if err != nil {
		return nil, fmt.Errorf("failed to list by scope: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListAll returns every record.
func (s *Store) ListAll(ctx context.Context) ([]*coordinator.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM memories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// TouchAccess bumps the access counter. Approximate under concurrency.
func (s *Store) TouchAccess(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, accessed_at = ?
		WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

// SetState updates the advisory commit state column.
func (s *Store) SetState(ctx context.Context, id string, state coordinator.State) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET state = ? WHERE id = ?`, string(state), id)
	return err
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*coordinator.MemoryRecord, error) {
	var rec coordinator.MemoryRecord
	var category sql.NullString
	var tagsJSON, metaJSON, state string

	err := row.Scan(&rec.ID, &rec.Content, &rec.Fingerprint, &rec.Scope,
		&category, &tagsJSON, &metaJSON, &state,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.AccessedAt, &rec.AccessCount)
	if err != nil {
		return nil, err
	}
	if category.Valid {
		rec.Category = category.String
	}
	rec.State = coordinator.State(state)
	_ = json.Unmarshal([]byte(tagsJSON), &rec.Tags)
	_ = json.Unmarshal([]byte(metaJSON), &rec.Metadata)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*coordinator.MemoryRecord, error) {
	var out []*coordinator.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// likeEscape escapes LIKE metacharacters so scope names containing % or _
// filter literally.
func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
