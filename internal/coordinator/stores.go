package coordinator

import "context"

// MetadataStore is the authoritative record store. Deleting here is the
// single point at which a record is gone for every read API.
type MetadataStore interface {
	Put(ctx context.Context, rec *MemoryRecord) error
	Get(ctx context.Context, id string) (*MemoryRecord, error)
	Delete(ctx context.Context, id string) error
	// FindByFingerprint returns (nil, nil) when no record matches; an
	// error means the store itself is unreachable.
	FindByFingerprint(ctx context.Context, fp string) (*MemoryRecord, error)
	ListByScopePrefix(ctx context.Context, prefix string) ([]*MemoryRecord, error)
	ListAll(ctx context.Context) ([]*MemoryRecord, error)
	// TouchAccess bumps access_count and accessed_at. Lost updates under
	// concurrency are acceptable; counters are approximate.
	TouchAccess(ctx context.Context, id string) error
	// SetState records the commit state. Advisory only; reconcile trusts
	// the id set difference, not this column.
	SetState(ctx context.Context, id string, state State) error
}

// VectorIndex stores embeddings keyed by record id with a denormalized
// scope for filtered nearest-neighbor queries.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, scope string) error
	Delete(ctx context.Context, id string) error
	// Query returns up to k matches restricted to the given scopes (all
	// scopes when the filter is empty), scores normalized to [0,1].
	Query(ctx context.Context, vector []float32, scopes []string, k int) ([]VectorMatch, error)
	ListIDs(ctx context.Context) (map[string]struct{}, error)
	// SetScope rewrites the denormalized scope without re-supplying the
	// vector; a missing id is not an error (the record may be metadata-only).
	SetScope(ctx context.Context, id, newScope string) error
}

// GraphStore holds derived association edges.
type GraphStore interface {
	AddEdge(ctx context.Context, source, target string, weight float64) error
	RemoveNode(ctx context.Context, id string) error
	Neighbors(ctx context.Context, id string, k int) ([]Edge, error)
}
