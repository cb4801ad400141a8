// Package vec implements the vector index store on sqlite-vec. It keeps its
// own SQLite database: a vec0 virtual table for KNN plus a mapping table
// carrying the text id and denormalized scope (vec0 requires integer rowids).
package vec

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

func init() {
	sqlite_vec.Auto()
}

// Index is a sqlite-vec backed coordinator.VectorIndex.
type Index struct {
	db         *sql.DB
	dimensions int
}

// Open creates or opens the vector database at path. Fails if the vec0
// extension is unavailable; callers fall back to another backend.
func Open(path string, dimensions int) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}
	idx := &Index{db: db, dimensions: dimensions}
	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (x *Index) ensureSchema() error {
	var vecVersion string
	if err := x.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if _, err := x.db.Exec(`CREATE TABLE IF NOT EXISTS vec_metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("failed to create vec_metadata: %w", err)
	}
	if _, err := x.db.Exec(`CREATE TABLE IF NOT EXISTS vec_ids (
		vec_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id TEXT UNIQUE NOT NULL,
		scope     TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create vec id mapping: %w", err)
	}
	if _, err := x.db.Exec(`CREATE INDEX IF NOT EXISTS idx_vec_ids_scope ON vec_ids(scope)`); err != nil {
		return err
	}

	x.handleDimensionChange()

	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		x.dimensions,
	)
	if _, err := x.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create vec0 table: %w", err)
	}

	x.db.Exec(`INSERT OR REPLACE INTO vec_metadata (key, value) VALUES ('dimensions', ?)`,
		fmt.Sprintf("%d", x.dimensions))
	return nil
}

// handleDimensionChange drops the index when the embedder dimensions differ
// from the stored ones (e.g. after switching providers); reconcile rebuilds
// the vectors from the metadata store.
func (x *Index) handleDimensionChange() {
	var stored string
	if err := x.db.QueryRow(`SELECT value FROM vec_metadata WHERE key = 'dimensions'`).Scan(&stored); err != nil {
		return
	}
	if stored == fmt.Sprintf("%d", x.dimensions) {
		return
	}
	x.db.Exec(`DROP TABLE IF EXISTS embeddings`)
	x.db.Exec(`DELETE FROM vec_ids`)
}

// Upsert adds or replaces a vector and its denormalized scope.
func (x *Index) Upsert(ctx context.Context, id string, vector []float32, scope string) error {
	if len(vector) != x.dimensions {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(vector), x.dimensions)
	}

	var vecID int64
	err := x.db.QueryRowContext(ctx, `SELECT vec_id FROM vec_ids WHERE memory_id = ?`, id).Scan(&vecID)
	if err == sql.ErrNoRows {
		res, insErr := x.db.ExecContext(ctx, `INSERT INTO vec_ids (memory_id, scope) VALUES (?, ?)`, id, scope)
		if insErr != nil {
			return fmt.Errorf("failed to create vec id mapping: %w", insErr)
		}
		vecID, _ = res.LastInsertId()
	} else if err != nil {
		return err
	} else {
		if _, err := x.db.ExecContext(ctx, `UPDATE vec_ids SET scope = ? WHERE vec_id = ?`, scope, vecID); err != nil {
			return err
		}
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return fmt.Errorf("failed to serialize vector: %w", err)
	}

	// vec0 has no ON CONFLICT; delete then insert.
	x.db.ExecContext(ctx, `DELETE FROM embeddings WHERE rowid = ?`, vecID)
	if _, err := x.db.ExecContext(ctx, `INSERT INTO embeddings (rowid, embedding) VALUES (?, ?)`, vecID, blob); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// Delete removes the vector. Missing ids are not an error.
func (x *Index) Delete(ctx context.Context, id string) error {
	var vecID int64
	if err := x.db.QueryRowContext(ctx, `SELECT vec_id FROM vec_ids WHERE memory_id = ?`, id).Scan(&vecID); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}
	if _, err := x.db.ExecContext(ctx, `DELETE FROM embeddings WHERE rowid = ?`, vecID); err != nil {
		return err
	}
	_, err := x.db.ExecContext(ctx, `DELETE FROM vec_ids WHERE vec_id = ?`, vecID)
	return err
}

// SetScope rewrites the denormalized scope; a missing id is a no-op.
func (x *Index) SetScope(ctx context.Context, id, newScope string) error {
	_, err := x.db.ExecContext(ctx, `UPDATE vec_ids SET scope = ? WHERE memory_id = ?`, newScope, id)
	return err
}

// Query runs a KNN search restricted to the given scopes (all scopes when
// empty). Cosine distance is normalized to a [0,1] similarity score.
//
// Scope filtering happens after the KNN pass. The fetch window starts wide
// and doubles until it either yields k in-scope matches or exhausts the
// index, so a run of closer out-of-scope vectors cannot starve the result.
func (x *Index) Query(ctx context.Context, vector []float32, scopes []string, k int) ([]coordinator.VectorMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	allowed := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		allowed[s] = struct{}{}
	}

	fetch := k
	if len(scopes) > 0 {
		fetch = k * 4
		if fetch < 40 {
			fetch = 40
		}
	}
	for {
		hits, err := x.knn(ctx, blob, fetch)
		if err != nil {
			return nil, err
		}
		matches, err := x.resolveMatches(ctx, hits, allowed, k)
		if err != nil {
			return nil, err
		}
		// Fewer hits than requested means the whole index was scanned.
		if len(matches) >= k || len(hits) < fetch || len(scopes) == 0 {
			return matches, nil
		}
		fetch *= 2
	}
}

type hit struct {
	rowID    int64
	distance float64
}

func (x *Index) knn(ctx context.Context, blob []byte, fetch int) ([]hit, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT rowid, distance FROM embeddings
		WHERE embedding MATCH ? ORDER BY distance LIMIT ?
	`, blob, fetch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowID, &h.distance); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// resolveMatches maps rowids back to memory ids, drops out-of-scope hits
// (allowed empty means unfiltered), and caps the result at k.
func (x *Index) resolveMatches(ctx context.Context, hits []hit, allowed map[string]struct{}, k int) ([]coordinator.VectorMatch, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(hits))
	args := make([]interface{}, len(hits))
	for i, h := range hits {
		placeholders[i] = "?"
		args[i] = h.rowID
	}
	mapRows, err := x.db.QueryContext(ctx,
		`SELECT vec_id, memory_id, scope FROM vec_ids WHERE vec_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer mapRows.Close()

	type entry struct {
		memoryID string
		scope    string
	}
	idMap := make(map[int64]entry, len(hits))
	for mapRows.Next() {
		var vecID int64
		var e entry
		if err := mapRows.Scan(&vecID, &e.memoryID, &e.scope); err != nil {
			continue
		}
		idMap[vecID] = e
	}

	var matches []coordinator.VectorMatch
	for _, h := range hits {
		e, ok := idMap[h.rowID]
		if !ok {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[e.scope]; !ok {
				continue
			}
		}
		// Cosine distance is in [0,2]; map to similarity in [0,1].
		matches = append(matches, coordinator.VectorMatch{
			ID:    e.memoryID,
			Score: 1.0 - h.distance/2.0,
		})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// ListIDs returns every id known to the index.
func (x *Index) ListIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT memory_id FROM vec_ids`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}
