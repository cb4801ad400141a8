// Package graph implements the association edge store on SQLite. Edges are
// derived from embedding similarity and regenerable; the store is never
// consulted for record existence.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

// Store persists weighted edges in a dedicated SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the graph database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open graph db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init graph schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS edges (
		source_id  TEXT NOT NULL,
		target_id  TEXT NOT NULL,
		weight     REAL NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (source_id, target_id)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddEdge inserts or refreshes a weighted edge.
func (s *Store) AddEdge(ctx context.Context, source, target string, weight float64) error {
	if source == "" || target == "" || source == target {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO edges (source_id, target_id, weight, created_at)
		VALUES (?, ?, ?, ?)
	`, source, target, weight, time.Now().UTC())
	return err
}

// RemoveNode drops every edge touching id.
func (s *Store) RemoveNode(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id)
	return err
}

// Neighbors returns the k strongest edges touching id, either direction.
func (s *Store) Neighbors(ctx context.Context, id string, k int) ([]coordinator.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, weight FROM edges
		WHERE source_id = ? OR target_id = ?
		ORDER BY weight DESC, source_id, target_id
		LIMIT ?
	`, id, id, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []coordinator.Edge
	for rows.Next() {
		var e coordinator.Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Weight); err != nil {
			continue
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
