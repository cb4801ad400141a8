package acceptance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/CanopyHQ/xylem/internal/coordinator"
	"github.com/CanopyHQ/xylem/internal/embed"
	"github.com/CanopyHQ/xylem/internal/store/chromem"
	"github.com/CanopyHQ/xylem/internal/store/graph"
	"github.com/CanopyHQ/xylem/internal/store/meta"
)

// switchableEmbedder lets scenarios take the embedding provider down.
type switchableEmbedder struct {
	inner embed.Embedder
	down  atomic.Bool
}

func (e *switchableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.down.Load() {
		return nil, errors.New("embedding provider unavailable")
	}
	return e.inner.Embed(ctx, text)
}

func (e *switchableEmbedder) Dimensions() int { return e.inner.Dimensions() }

// TestContext holds state between steps
type TestContext struct {
	ctx      context.Context
	coor     *coordinator.Coordinator
	vec      coordinator.VectorIndex
	embedder *switchableEmbedder
	cleanup  []func()

	firstRecord *coordinator.MemoryRecord
	lastRecord  *coordinator.MemoryRecord
	lastSearch  *coordinator.SearchResponse
	lastReport  *coordinator.ReconcileReport
	lastErr     error
}

func newTestContext() *TestContext {
	return &TestContext{ctx: context.Background()}
}

func (tc *TestContext) reset() {
	if tc.coor != nil {
		tc.coor.Flush()
	}
	for i := len(tc.cleanup) - 1; i >= 0; i-- {
		tc.cleanup[i]()
	}
	*tc = TestContext{ctx: context.Background()}
}

func (tc *TestContext) coordinatorRunning() error {
	if tc.coor != nil {
		return nil
	}
	dir, err := os.MkdirTemp("", "xylem-acceptance-*")
	if err != nil {
		return err
	}
	tc.cleanup = append(tc.cleanup, func() { os.RemoveAll(dir) })

	metaStore, err := meta.Open(filepath.Join(dir, "metadata.db"))
	if err != nil {
		return err
	}
	tc.cleanup = append(tc.cleanup, func() { metaStore.Close() })

	idx, err := chromem.New()
	if err != nil {
		return err
	}
	tc.vec = idx

	graphStore, err := graph.Open(filepath.Join(dir, "graph.db"))
	if err != nil {
		return err
	}
	tc.cleanup = append(tc.cleanup, func() { graphStore.Close() })

	tc.embedder = &switchableEmbedder{inner: embed.NewLocalEmbedder()}
	tc.coor = coordinator.New(metaStore, idx, graphStore, tc.embedder,
		log.New(io.Discard), coordinator.Options{})
	return nil
}

func (tc *TestContext) embeddingProviderDown() error {
	tc.embedder.down.Store(true)
	return nil
}

func (tc *TestContext) embeddingProviderUp() error {
	tc.embedder.down.Store(false)
	return nil
}

func (tc *TestContext) storeInScope(content, scope string) error {
	rec, err := tc.coor.Store(tc.ctx, coordinator.StoreRequest{
		Content: content,
		Scope:   scope,
	})
	tc.lastErr = err
	if err != nil {
		return nil
	}
	if tc.firstRecord == nil {
		tc.firstRecord = rec
	}
	tc.lastRecord = rec
	return nil
}

func (tc *TestContext) storeSucceeded() error {
	if tc.lastErr != nil {
		return fmt.Errorf("store failed: %w", tc.lastErr)
	}
	return nil
}

func (tc *TestContext) sameMemoryBack() error {
	if tc.firstRecord == nil || tc.lastRecord == nil {
		return errors.New("no stored memories to compare")
	}
	if tc.firstRecord.ID != tc.lastRecord.ID {
		return fmt.Errorf("expected id %s, got %s", tc.firstRecord.ID, tc.lastRecord.ID)
	}
	return nil
}

func (tc *TestContext) newMemory() error {
	if tc.firstRecord == nil || tc.lastRecord == nil {
		return errors.New("no stored memories to compare")
	}
	if tc.firstRecord.ID == tc.lastRecord.ID {
		return fmt.Errorf("expected a new id, got %s twice", tc.lastRecord.ID)
	}
	return nil
}

func (tc *TestContext) memoryCommitted() error {
	return tc.expectState(coordinator.StateCommitted)
}

func (tc *TestContext) memoryMetadataOnly() error {
	return tc.expectState(coordinator.StateMetadataOnly)
}

func (tc *TestContext) expectState(want coordinator.State) error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	rec, err := tc.coor.Get(tc.ctx, tc.lastRecord.ID)
	if err != nil {
		return err
	}
	if rec.State != want {
		return fmt.Errorf("expected state %s, got %s", want, rec.State)
	}
	return nil
}

func (tc *TestContext) fetchByID() error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	rec, err := tc.coor.Get(tc.ctx, tc.lastRecord.ID)
	tc.lastErr = err
	if err == nil {
		if rec.Content != tc.lastRecord.Content {
			return fmt.Errorf("content mismatch: %q vs %q", rec.Content, tc.lastRecord.Content)
		}
	}
	return nil
}

func (tc *TestContext) contentMatches() error {
	return tc.lastErr
}

func (tc *TestContext) fetchNotFound() error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	_, err := tc.coor.Get(tc.ctx, tc.lastRecord.ID)
	if !errors.Is(err, coordinator.ErrNotFound) {
		return fmt.Errorf("expected not found, got %v", err)
	}
	return nil
}

func (tc *TestContext) searchInScope(query, scope string) error {
	return tc.doSearch(query, scope, false, 0)
}

func (tc *TestContext) searchInScopeWithChildren(query, scope string) error {
	return tc.doSearch(query, scope, true, 0)
}

func (tc *TestContext) searchWithThreshold(query string, threshold float64) error {
	return tc.doSearch(query, "", false, threshold)
}

func (tc *TestContext) doSearch(query, scope string, children bool, threshold float64) error {
	resp, err := tc.coor.Search(tc.ctx, coordinator.SearchRequest{
		Query:               query,
		Scope:               scope,
		IncludeChildScopes:  children,
		Limit:               20,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		return err
	}
	tc.lastSearch = resp
	return nil
}

func (tc *TestContext) resultsInclude(content string) error {
	if tc.lastSearch == nil {
		return errors.New("no search performed")
	}
	for _, r := range tc.lastSearch.Results {
		if strings.Contains(r.Record.Content, content) {
			return nil
		}
	}
	return fmt.Errorf("no result contains %q", content)
}

func (tc *TestContext) resultsExclude(content string) error {
	if tc.lastSearch == nil {
		return errors.New("no search performed")
	}
	for _, r := range tc.lastSearch.Results {
		if strings.Contains(r.Record.Content, content) {
			return fmt.Errorf("unexpected result containing %q", content)
		}
	}
	return nil
}

func (tc *TestContext) resultsEmpty() error {
	if tc.lastSearch == nil {
		return errors.New("no search performed")
	}
	if len(tc.lastSearch.Results) != 0 {
		return fmt.Errorf("expected no results, got %d", len(tc.lastSearch.Results))
	}
	return nil
}

func (tc *TestContext) resultsDegraded() error {
	if tc.lastSearch == nil {
		return errors.New("no search performed")
	}
	if !tc.lastSearch.Degraded {
		return errors.New("expected degraded results")
	}
	return nil
}

func (tc *TestContext) resultScoresAtLeast(min float64) error {
	if tc.lastSearch == nil {
		return errors.New("no search performed")
	}
	for _, r := range tc.lastSearch.Results {
		if r.Score < min {
			return fmt.Errorf("score %.3f below %.3f", r.Score, min)
		}
	}
	return nil
}

func (tc *TestContext) moveToScope(scope string) error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	results, err := tc.coor.Move(tc.ctx, []string{tc.lastRecord.ID}, scope)
	if err != nil {
		return err
	}
	if len(results) != 1 || results[0].Err != nil {
		return fmt.Errorf("move failed: %v", results[0].Err)
	}
	return nil
}

func (tc *TestContext) memoryInScope(scope string) error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	rec, err := tc.coor.Get(tc.ctx, tc.lastRecord.ID)
	if err != nil {
		return err
	}
	if rec.Scope != scope {
		return fmt.Errorf("expected scope %s, got %s", scope, rec.Scope)
	}
	return nil
}

func (tc *TestContext) creationTimeUnchanged() error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	rec, err := tc.coor.Get(tc.ctx, tc.lastRecord.ID)
	if err != nil {
		return err
	}
	if !rec.CreatedAt.Equal(tc.lastRecord.CreatedAt) {
		return fmt.Errorf("creation time changed: %s vs %s", rec.CreatedAt, tc.lastRecord.CreatedAt)
	}
	return nil
}

func (tc *TestContext) deleteMemory() error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	return tc.coor.Delete(tc.ctx, tc.lastRecord.ID)
}

func (tc *TestContext) runReconcile() error {
	report, err := tc.coor.Reconcile(tc.ctx)
	if err != nil {
		return err
	}
	tc.lastReport = report
	return nil
}

func (tc *TestContext) recordsRepaired(count int) error {
	if tc.lastReport == nil {
		return errors.New("no reconcile run")
	}
	if tc.lastReport.Repaired != count {
		return fmt.Errorf("expected %d repaired, got %d", count, tc.lastReport.Repaired)
	}
	return nil
}

func (tc *TestContext) orphansRemoved(count int) error {
	if tc.lastReport == nil {
		return errors.New("no reconcile run")
	}
	if tc.lastReport.OrphansRemoved != count {
		return fmt.Errorf("expected %d orphans removed, got %d", count, tc.lastReport.OrphansRemoved)
	}
	return nil
}

func (tc *TestContext) vectorIndexContains() error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	ids, err := tc.vec.ListIDs(tc.ctx)
	if err != nil {
		return err
	}
	if _, ok := ids[tc.lastRecord.ID]; !ok {
		return fmt.Errorf("vector index missing %s", tc.lastRecord.ID)
	}
	return nil
}

func (tc *TestContext) vectorIndexMissing() error {
	if tc.lastRecord == nil {
		return errors.New("no memory stored")
	}
	ids, err := tc.vec.ListIDs(tc.ctx)
	if err != nil {
		return err
	}
	if _, ok := ids[tc.lastRecord.ID]; ok {
		return fmt.Errorf("vector index still holds %s", tc.lastRecord.ID)
	}
	return nil
}
