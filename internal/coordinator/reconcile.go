package coordinator

import (
	"context"
	"fmt"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	MetadataOnly   int `json:"metadata_only"`
	OrphanVectors  int `json:"orphan_vectors"`
	Repaired       int `json:"repaired"`
	OrphansRemoved int `json:"orphans_removed"`
	StillDivergent int `json:"still_divergent"`
}

// Reconcile detects and repairs divergence between the metadata store and
// the vector index: records without a vector get re-embedded and inserted,
// vectors without a record get removed.
//
// The pass is snapshot-then-verify-then-repair: it never holds a store-wide
// lock, takes the per-id lock only for the moment of an individual repair,
// and re-checks authoritative existence right before each mutation so it
// cannot race a concurrent Delete or Store. Safe to run repeatedly or
// concurrently with itself; ctx cancellation stops cleanly between repairs.
func (c *Coordinator) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	metaRecs, err := c.meta.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	vecIDs, err := c.vec.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector index unavailable: %w", err)
	}

	metaIDs := make(map[string]struct{}, len(metaRecs))
	var missingVector []*MemoryRecord
	for _, rec := range metaRecs {
		metaIDs[rec.ID] = struct{}{}
		if _, ok := vecIDs[rec.ID]; !ok {
			missingVector = append(missingVector, rec)
		}
	}
	var orphans []string
	for id := range vecIDs {
		if _, ok := metaIDs[id]; !ok {
			orphans = append(orphans, id)
		}
	}

	report := &ReconcileReport{
		MetadataOnly:  len(missingVector),
		OrphanVectors: len(orphans),
	}
	c.logger.Info("reconcile pass starting",
		"metadata_only", report.MetadataOnly, "orphan_vectors", report.OrphanVectors)

	for _, rec := range missingVector {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if c.repairMissingVector(ctx, rec.ID) {
			report.Repaired++
		} else {
			report.StillDivergent++
		}
	}

	for _, id := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if c.removeOrphanVector(ctx, id) {
			report.OrphansRemoved++
		}
	}

	c.logger.Info("reconcile pass complete",
		"repaired", report.Repaired,
		"orphans_removed", report.OrphansRemoved,
		"still_divergent", report.StillDivergent)
	return report, nil
}

// repairMissingVector re-embeds one record and inserts its vector. Returns
// false when the divergence persists; true also covers the benign case
// where the record vanished before repair.
func (c *Coordinator) repairMissingVector(ctx context.Context, id string) bool {
	c.locks.Lock(id)
	defer c.locks.Unlock(id)

	// Re-check against the authoritative store: a concurrent Delete may
	// have won since the snapshot.
	rec, err := c.meta.Get(ctx, id)
	if err != nil {
		return true
	}

	vector, err := c.embed(ctx, rec.Content)
	if err != nil {
		c.logger.Warn("reconcile re-embed failed", "id", id, "err", err)
		return false
	}
	if err := c.vec.Upsert(ctx, id, vector, rec.Scope); err != nil {
		c.logger.Warn("reconcile vector insert failed", "id", id, "err", err)
		return false
	}
	if err := c.meta.SetState(ctx, id, StateCommitted); err != nil {
		c.logger.Debug("state update failed after repair", "id", id, "err", err)
	}
	return true
}

// removeOrphanVector deletes a vector whose record no longer exists.
func (c *Coordinator) removeOrphanVector(ctx context.Context, id string) bool {
	c.locks.Lock(id)
	defer c.locks.Unlock(id)

	// A concurrent Store may have re-created the record since the snapshot.
	if _, err := c.meta.Get(ctx, id); err == nil {
		return false
	}
	if err := c.vec.Delete(ctx, id); err != nil {
		c.logger.Warn("reconcile orphan removal failed", "id", id, "err", err)
		return false
	}
	return true
}
