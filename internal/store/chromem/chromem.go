// Package chromem implements the vector index store on chromem-go, a pure
// Go embedded vector database. No cgo and no extension loading, which makes
// it the default backend for tests and local development.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

const collectionName = "memories"

// Index is a chromem-go backed coordinator.VectorIndex. It tracks the
// id-to-scope mapping itself; chromem's where filters are exact-match only,
// so scoped queries run once per candidate scope and merge.
type Index struct {
	col *chromemgo.Collection

	mu     sync.RWMutex
	scopes map[string]string // id -> scope
}

// New creates an in-memory chromem index.
func New() (*Index, error) {
	db := chromemgo.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &Index{col: col, scopes: make(map[string]string)}, nil
}

func (x *Index) Upsert(ctx context.Context, id string, vector []float32, scope string) error {
	// AddDocument does not replace; drop any existing document first.
	x.mu.Lock()
	_, existed := x.scopes[id]
	x.mu.Unlock()
	if existed {
		if err := x.col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("failed to replace document: %w", err)
		}
	}

	err := x.col.AddDocument(ctx, chromemgo.Document{
		ID:        id,
		Embedding: vector,
		Metadata:  map[string]string{"scope": scope},
		Content:   id,
	})
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	x.mu.Lock()
	x.scopes[id] = scope
	x.mu.Unlock()
	return nil
}

func (x *Index) Delete(ctx context.Context, id string) error {
	x.mu.Lock()
	_, existed := x.scopes[id]
	delete(x.scopes, id)
	x.mu.Unlock()
	if !existed {
		return nil
	}
	if err := x.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (x *Index) SetScope(ctx context.Context, id, newScope string) error {
	doc, err := x.col.GetByID(ctx, id)
	if err != nil {
		return nil // metadata-only record, nothing to rewrite
	}
	if err := x.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to rewrite scope: %w", err)
	}
	doc.Metadata = map[string]string{"scope": newScope}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to rewrite scope: %w", err)
	}

	x.mu.Lock()
	x.scopes[id] = newScope
	x.mu.Unlock()
	return nil
}

func (x *Index) Query(ctx context.Context, vector []float32, scopes []string, k int) ([]coordinator.VectorMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	var results []chromemgo.Result
	if len(scopes) == 0 {
		n := x.clamp(k, "")
		if n == 0 {
			return nil, nil
		}
		res, err := x.col.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		results = res
	} else {
		// One exact-match query per scope, merged below.
		for _, s := range scopes {
			n := x.clamp(k, s)
			if n == 0 {
				continue
			}
			res, err := x.col.QueryEmbedding(ctx, vector, n, map[string]string{"scope": s}, nil)
			if err != nil {
				return nil, fmt.Errorf("query failed for scope %q: %w", s, err)
			}
			results = append(results, res...)
		}
	}

	matches := make([]coordinator.VectorMatch, 0, len(results))
	for _, r := range results {
		// chromem similarity is cosine in [-1,1]; map to [0,1].
		matches = append(matches, coordinator.VectorMatch{
			ID:    r.ID,
			Score: (float64(r.Similarity) + 1) / 2,
		})
	}
	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// clamp limits nResults to the matching document count; chromem rejects
// queries asking for more results than documents.
func (x *Index) clamp(k int, scope string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	if scope == "" {
		n = len(x.scopes)
	} else {
		for _, s := range x.scopes {
			if s == scope {
				n++
			}
		}
	}
	if k < n {
		return k
	}
	return n
}

func (x *Index) ListIDs(ctx context.Context) (map[string]struct{}, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string]struct{}, len(x.scopes))
	for id := range x.scopes {
		out[id] = struct{}{}
	}
	return out, nil
}

func sortMatches(matches []coordinator.VectorMatch) {
	// Insertion sort; merged per-scope result sets stay small.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}
