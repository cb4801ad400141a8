package coordinator

import (
	"context"
	"fmt"
)

// StatsReport counts records per lifecycle state plus the vector index size.
type StatsReport struct {
	Total          int `json:"total"`
	Committed      int `json:"committed"`
	MetadataOnly   int `json:"metadata_only"`
	PendingEmbed   int `json:"pending_embed"`
	IndexedVectors int `json:"indexed_vectors"`
}

// Stats reads the current record counts. The two stores are read without
// any lock, so a concurrent write can skew the counts by one.
func (c *Coordinator) Stats(ctx context.Context) (*StatsReport, error) {
	recs, err := c.meta.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	report := &StatsReport{Total: len(recs)}
	for _, r := range recs {
		switch r.State {
		case StateCommitted:
			report.Committed++
		case StateMetadataOnly:
			report.MetadataOnly++
		case StatePendingEmbed:
			report.PendingEmbed++
		}
	}

	ids, err := c.vec.ListIDs(ctx)
	if err != nil {
		c.logger.Warn("vector index unreachable", "err", err)
	} else {
		report.IndexedVectors = len(ids)
	}
	return report, nil
}
