// Package coordinator orchestrates memory records across the metadata,
// vector, and graph stores, and owns the consistency contract between them.
package coordinator

import "time"

// State tracks where a record sits in the commit lifecycle. A record is
// committed once it exists in both the metadata store and the vector index;
// metadata_only is an expected, reconcile-bounded divergence, not corruption.
type State string

const (
	StatePendingEmbed State = "pending_embed"
	StateCommitted    State = "committed"
	StateMetadataOnly State = "metadata_only"
)

// MemoryRecord is a stored memory. The metadata store is authoritative for
// every field here; the embedding vector lives only in the vector index,
// referenced by ID.
type MemoryRecord struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Scope       string            `json:"scope"`
	Category    string            `json:"category,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Fingerprint string            `json:"fingerprint"`
	State       State             `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	AccessedAt  time.Time         `json:"accessed_at"`
	AccessCount int64             `json:"access_count"`
}

// Clone returns a deep copy so callers can't mutate store-held state.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Tags = append([]string(nil), r.Tags...)
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// VectorMatch is one ranked hit from the vector index, score in [0,1].
type VectorMatch struct {
	ID    string
	Score float64
}

// Edge is a derived association between two records. Regenerable from the
// vector index at any time; never consulted for record existence.
type Edge struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Weight   float64 `json:"weight"`
}
