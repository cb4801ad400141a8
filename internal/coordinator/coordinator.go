package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/CanopyHQ/xylem/internal/embed"
	"github.com/CanopyHQ/xylem/internal/fingerprint"
	"github.com/CanopyHQ/xylem/internal/scope"
)

// Options tunes coordinator behavior. Zero values get sensible defaults.
type Options struct {
	// EmbedTimeout bounds every call to the embedding provider. On timeout
	// the record stays metadata_only; retry belongs to Reconcile, never to
	// the write path.
	EmbedTimeout time.Duration

	// MaxContentBytes rejects oversized content before any mutation.
	MaxContentBytes int

	// MaxMetadataEntries caps the number of metadata key/value pairs.
	MaxMetadataEntries int

	// MaxMetadataBytes caps the combined size of metadata keys and values.
	MaxMetadataBytes int

	// EdgeNeighbors is how many nearest neighbors to link with association
	// edges after a committed write. Zero disables edge creation.
	EdgeNeighbors int

	// EdgeMinWeight drops association edges below this similarity.
	EdgeMinWeight float64

	// LockStripes sizes the per-id lock table.
	LockStripes int
}

func (o Options) withDefaults() Options {
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 10 * time.Second
	}
	if o.MaxContentBytes <= 0 {
		o.MaxContentBytes = 64 * 1024
	}
	if o.MaxMetadataEntries <= 0 {
		o.MaxMetadataEntries = 32
	}
	if o.MaxMetadataBytes <= 0 {
		o.MaxMetadataBytes = 8 * 1024
	}
	if o.EdgeMinWeight <= 0 {
		o.EdgeMinWeight = 0.6
	}
	return o
}

// Coordinator orchestrates store/get/search/move/delete/reconcile across the
// three backing stores. Construct one per process and share it; all entry
// points are safe for concurrent use.
type Coordinator struct {
	meta     MetadataStore
	vec      VectorIndex
	graph    GraphStore
	embedder embed.Embedder
	locks    *keyedMutex
	flight   singleflight.Group
	logger   *log.Logger
	opts     Options

	bg sync.WaitGroup
}

// New wires a coordinator. graph may be nil to disable association edges.
func New(meta MetadataStore, vec VectorIndex, graph GraphStore, embedder embed.Embedder, logger *log.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	opts = opts.withDefaults()
	return &Coordinator{
		meta:     meta,
		vec:      vec,
		graph:    graph,
		embedder: embedder,
		locks:    newKeyedMutex(opts.LockStripes),
		logger:   logger,
		opts:     opts,
	}
}

// Flush waits for background work (access touches, edge writes) to settle.
// Call on shutdown; tests use it for determinism.
func (c *Coordinator) Flush() {
	c.bg.Wait()
}

// StoreRequest carries the inputs for Store.
type StoreRequest struct {
	Content         string
	Scope           string
	Tags            []string
	Category        string
	Metadata        map[string]string
	AllowDuplicates bool
}

// Store persists a new memory. With AllowDuplicates false it is idempotent
// on the (content, scope) fingerprint: concurrent identical calls collapse
// onto one write and later callers get the first record back.
//
// The metadata write gates success. Embedding or vector failures degrade the
// returned record to metadata_only; Reconcile picks those up later.
func (c *Coordinator) Store(ctx context.Context, req StoreRequest) (*MemoryRecord, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, validationErr("content must not be empty")
	}
	if len(content) > c.opts.MaxContentBytes {
		return nil, validationErr("content exceeds %d bytes", c.opts.MaxContentBytes)
	}
	if err := scope.Validate(req.Scope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := c.validateMetadata(req.Metadata); err != nil {
		return nil, err
	}
	tags := normalizeTags(req.Tags)

	fp := fingerprint.New(content, req.Scope)

	if req.AllowDuplicates {
		return c.createRecord(ctx, content, req, tags, fp)
	}

	// Single-flight on the fingerprint: one check-then-insert window per
	// fingerprint, concurrent distinct fingerprints proceed independently.
	v, err, _ := c.flight.Do(fp, func() (interface{}, error) {
		if existing, err := c.meta.FindByFingerprint(ctx, fp); err == nil && existing != nil {
			return existing, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return c.createRecord(ctx, content, req, tags, fp)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MemoryRecord).Clone(), nil
}

func (c *Coordinator) createRecord(ctx context.Context, content string, req StoreRequest, tags []string, fp string) (*MemoryRecord, error) {
	now := time.Now().UTC()
	rec := &MemoryRecord{
		ID:          uuid.NewString(),
		Content:     content,
		Scope:       req.Scope,
		Category:    req.Category,
		Tags:        tags,
		Metadata:    req.Metadata,
		Fingerprint: fp,
		State:       StatePendingEmbed,
		CreatedAt:   now,
		UpdatedAt:   now,
		AccessedAt:  now,
	}

	vector, embedErr := c.embed(ctx, content)
	if embedErr != nil {
		c.logger.Warn("embedding failed, storing metadata only",
			"id", rec.ID, "err", embedErr)
		rec.State = StateMetadataOnly
	}

	if err := c.meta.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if embedErr == nil {
		if err := c.vec.Upsert(ctx, rec.ID, vector, rec.Scope); err != nil {
			// Metadata is committed; the call still succeeds. Reconcile
			// finds the missing vector by set difference.
			c.logger.Warn("vector upsert failed after metadata commit",
				"id", rec.ID, "err", err)
			rec.State = StateMetadataOnly
		} else {
			rec.State = StateCommitted
			c.linkNeighborsAsync(rec.ID, vector, rec.Scope)
		}
	}
	if err := c.meta.SetState(ctx, rec.ID, rec.State); err != nil {
		c.logger.Warn("state update failed", "id", rec.ID, "err", err)
	}

	return rec, nil
}

// linkNeighborsAsync adds association edges to the nearest committed
// neighbors. Best-effort and off the write path.
func (c *Coordinator) linkNeighborsAsync(id string, vector []float32, recScope string) {
	if c.graph == nil || c.opts.EdgeNeighbors <= 0 {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.EmbedTimeout)
		defer cancel()

		matches, err := c.vec.Query(ctx, vector, nil, c.opts.EdgeNeighbors+1)
		if err != nil {
			c.logger.Debug("neighbor query failed", "id", id, "err", err)
			return
		}
		for _, m := range matches {
			if m.ID == id || m.Score < c.opts.EdgeMinWeight {
				continue
			}
			if err := c.graph.AddEdge(ctx, id, m.ID, m.Score); err != nil {
				c.logger.Debug("edge insert failed", "source", id, "target", m.ID, "err", err)
			}
		}
	}()
}

// Get returns the record by id. Access stats are bumped in the background;
// dropped updates under load are fine, the counter is approximate.
func (c *Coordinator) Get(ctx context.Context, id string) (*MemoryRecord, error) {
	rec, err := c.meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.meta.TouchAccess(tctx, id); err != nil {
			c.logger.Debug("access touch failed", "id", id, "err", err)
		}
	}()

	return rec.Clone(), nil
}

// Neighbors returns the strongest association edges for a record.
func (c *Coordinator) Neighbors(ctx context.Context, id string, k int) ([]Edge, error) {
	if _, err := c.meta.Get(ctx, id); err != nil {
		return nil, err
	}
	if c.graph == nil {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	return c.graph.Neighbors(ctx, id, k)
}

// SearchRequest carries the inputs for Search.
type SearchRequest struct {
	Query               string
	Scope               string
	IncludeChildScopes  bool
	Limit               int
	SimilarityThreshold float64
}

// SearchResult pairs a record with its normalized similarity score.
type SearchResult struct {
	Record *MemoryRecord `json:"record"`
	Score  float64       `json:"score"`
}

// SearchResponse is an ordered result list. Degraded marks a lexical
// fallback (vector index unreachable or query embedding unavailable).
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded"`
}

// Search runs scoped similarity search. An empty scope searches everywhere;
// otherwise the filter covers the scope itself plus, when requested, every
// segment-aligned descendant ("work" matches "work/meetings", never
// "workshop").
func (c *Coordinator) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, validationErr("query must not be empty")
	}
	if req.Scope != "" {
		if err := scope.Validate(req.Scope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return nil, validationErr("similarity_threshold must be in [0,1]")
	}

	candidates, err := c.scopeCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	queryVec, embedErr := c.embed(ctx, req.Query)
	if embedErr == nil {
		results, vecErr := c.vectorSearch(ctx, queryVec, candidates, req)
		if vecErr == nil {
			results, degraded := c.mergeUnembedded(ctx, candidates, req, results)
			return &SearchResponse{Results: results, Degraded: degraded}, nil
		}
		c.logger.Warn("vector search unavailable, falling back to lexical",
			"err", vecErr)
	} else {
		c.logger.Warn("query embedding unavailable, falling back to lexical",
			"err", embedErr)
	}

	results, err := c.lexicalSearch(ctx, candidates, req)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, Degraded: true}, nil
}

// scopeCandidates resolves the scope filter. nil means unfiltered. A scope
// with no child expansion filters on itself alone.
func (c *Coordinator) scopeCandidates(ctx context.Context, req SearchRequest) ([]string, error) {
	if req.Scope == "" {
		return nil, nil
	}
	if !req.IncludeChildScopes {
		return []string{req.Scope}, nil
	}
	recs, err := c.meta.ListByScopePrefix(ctx, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	seen := map[string]struct{}{req.Scope: {}}
	out := []string{req.Scope}
	for _, r := range recs {
		if _, ok := seen[r.Scope]; ok {
			continue
		}
		if scope.IsAncestor(req.Scope, r.Scope) {
			seen[r.Scope] = struct{}{}
			out = append(out, r.Scope)
		}
	}
	return out, nil
}

func (c *Coordinator) vectorSearch(ctx context.Context, queryVec []float32, scopes []string, req SearchRequest) ([]SearchResult, error) {
	// Overfetch so threshold filtering and vanished records don't starve
	// the result set.
	k := req.Limit * 3
	if k < 20 {
		k = 20
	}
	matches, err := c.vec.Query(ctx, queryVec, scopes, k)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < req.SimilarityThreshold {
			continue
		}
		rec, err := c.meta.Get(ctx, m.ID)
		if err != nil {
			// Orphaned vector; reconcile will remove it.
			continue
		}
		results = append(results, SearchResult{Record: rec.Clone(), Score: m.Score})
	}
	sortResults(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// mergeUnembedded folds lexical matches for records that have no vector yet
// into a healthy vector result set. A metadata_only record would otherwise be
// invisible to search until reconcile repairs it; any merged match marks the
// response degraded.
func (c *Coordinator) mergeUnembedded(ctx context.Context, scopes []string, req SearchRequest, results []SearchResult) ([]SearchResult, bool) {
	recs, err := c.listScoped(ctx, scopes, req)
	if err != nil {
		c.logger.Debug("unembedded candidate scan failed", "err", err)
		return results, false
	}

	have := make(map[string]struct{}, len(results))
	for _, r := range results {
		have[r.Record.ID] = struct{}{}
	}

	needle := strings.ToLower(strings.TrimSpace(req.Query))
	merged := false
	for _, rec := range recs {
		if rec.State != StateMetadataOnly {
			continue
		}
		if _, ok := have[rec.ID]; ok {
			continue
		}
		if !strings.Contains(strings.ToLower(rec.Content), needle) {
			continue
		}
		score := wordOverlap(req.Query, rec.Content)
		if score < req.SimilarityThreshold {
			continue
		}
		results = append(results, SearchResult{Record: rec.Clone(), Score: score})
		merged = true
	}
	if merged {
		sortResults(results)
		if len(results) > req.Limit {
			results = results[:req.Limit]
		}
	}
	return results, merged
}

// lexicalSearch is the degraded path: case-insensitive substring match over
// metadata content, scored by word overlap.
func (c *Coordinator) lexicalSearch(ctx context.Context, scopes []string, req SearchRequest) ([]SearchResult, error) {
	recs, err := c.listScoped(ctx, scopes, req)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(req.Query))
	var results []SearchResult
	for _, rec := range recs {
		if !strings.Contains(strings.ToLower(rec.Content), needle) {
			continue
		}
		score := wordOverlap(req.Query, rec.Content)
		if score < req.SimilarityThreshold {
			continue
		}
		results = append(results, SearchResult{Record: rec.Clone(), Score: score})
	}
	sortResults(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// listScoped returns the metadata records the scope filter admits. nil scopes
// means every record.
func (c *Coordinator) listScoped(ctx context.Context, scopes []string, req SearchRequest) ([]*MemoryRecord, error) {
	if scopes == nil {
		recs, err := c.meta.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return recs, nil
	}
	recs, err := c.meta.ListByScopePrefix(ctx, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	allowed := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		allowed[s] = struct{}{}
	}
	out := recs[:0]
	for _, rec := range recs {
		if _, ok := allowed[rec.Scope]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// sortResults orders by score desc, then most recent access, then id asc,
// so equal-score results come back deterministically.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ai, aj := results[i].Record.AccessedAt, results[j].Record.AccessedAt
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

// MoveResult reports the outcome for one id in a Move call.
type MoveResult struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// Move reassigns records to targetScope. Per id, either the metadata scope
// and the denormalized vector scope both change or the id is reported
// failed; created_at is never touched.
func (c *Coordinator) Move(ctx context.Context, ids []string, targetScope string) ([]MoveResult, error) {
	if err := scope.Validate(targetScope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	results := make([]MoveResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, MoveResult{ID: id, Err: c.moveOne(ctx, id, targetScope)})
	}
	return results, nil
}

func (c *Coordinator) moveOne(ctx context.Context, id, targetScope string) error {
	c.locks.Lock(id)
	defer c.locks.Unlock(id)

	rec, err := c.meta.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Scope == targetScope {
		return nil
	}

	oldScope := rec.Scope
	rec.Scope = targetScope
	rec.Fingerprint = fingerprint.New(rec.Content, targetScope)
	rec.UpdatedAt = time.Now().UTC()
	if err := c.meta.Put(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := c.vec.SetScope(ctx, id, targetScope); err != nil {
		// Revert the metadata write so the two stores stay in step.
		rec.Scope = oldScope
		rec.Fingerprint = fingerprint.New(rec.Content, oldScope)
		if revertErr := c.meta.Put(ctx, rec); revertErr != nil {
			c.logger.Error("move revert failed, scopes diverged until reconcile",
				"id", id, "err", revertErr)
		}
		return fmt.Errorf("vector scope update failed: %w", err)
	}
	return nil
}

// UpdateRequest mutates an existing record. Nil fields are left untouched.
type UpdateRequest struct {
	Content  *string
	Tags     *[]string
	Category *string
	Metadata map[string]string
}

// Update applies field changes under the per-id lock. Replacing content
// recomputes the fingerprint and re-embeds; an embedding failure degrades
// the record to metadata_only rather than failing the update.
func (c *Coordinator) Update(ctx context.Context, id string, req UpdateRequest) (*MemoryRecord, error) {
	c.locks.Lock(id)
	defer c.locks.Unlock(id)

	rec, err := c.meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reembed := false
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if content == "" {
			return nil, validationErr("content must not be empty")
		}
		if len(content) > c.opts.MaxContentBytes {
			return nil, validationErr("content exceeds %d bytes", c.opts.MaxContentBytes)
		}
		if content != rec.Content {
			rec.Content = content
			rec.Fingerprint = fingerprint.New(content, rec.Scope)
			reembed = true
		}
	}
	if req.Tags != nil {
		rec.Tags = normalizeTags(*req.Tags)
	}
	if req.Category != nil {
		rec.Category = *req.Category
	}
	if req.Metadata != nil {
		if err := c.validateMetadata(req.Metadata); err != nil {
			return nil, err
		}
		rec.Metadata = req.Metadata
	}
	rec.UpdatedAt = time.Now().UTC()

	if reembed {
		vector, embedErr := c.embed(ctx, rec.Content)
		if embedErr != nil {
			rec.State = StateMetadataOnly
		} else if err := c.vec.Upsert(ctx, rec.ID, vector, rec.Scope); err != nil {
			c.logger.Warn("vector upsert failed on update", "id", id, "err", err)
			rec.State = StateMetadataOnly
		} else {
			rec.State = StateCommitted
		}
	}

	if err := c.meta.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec.Clone(), nil
}

// Delete removes a record. The metadata delete is the point of no return;
// vector and graph cleanup is best-effort and reconcile sweeps stragglers.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	c.locks.Lock(id)
	defer c.locks.Unlock(id)

	if err := c.meta.Delete(ctx, id); err != nil {
		return err
	}

	if err := c.vec.Delete(ctx, id); err != nil {
		c.logger.Warn("vector delete failed, reconcile will sweep", "id", id, "err", err)
	}
	if c.graph != nil {
		if err := c.graph.RemoveNode(ctx, id); err != nil {
			c.logger.Warn("graph node removal failed", "id", id, "err", err)
		}
	}
	return nil
}

func (c *Coordinator) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, c.opts.EmbedTimeout)
	defer cancel()
	vec, err := c.embedder.Embed(ectx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// validateMetadata enforces the entry-count and byte caps so a single record
// cannot bloat the metadata store.
func (c *Coordinator) validateMetadata(md map[string]string) error {
	if len(md) > c.opts.MaxMetadataEntries {
		return validationErr("metadata exceeds %d entries", c.opts.MaxMetadataEntries)
	}
	total := 0
	for k, v := range md {
		if strings.TrimSpace(k) == "" {
			return validationErr("metadata keys must not be empty")
		}
		total += len(k) + len(v)
	}
	if total > c.opts.MaxMetadataBytes {
		return validationErr("metadata exceeds %d bytes", c.opts.MaxMetadataBytes)
	}
	return nil
}

// normalizeTags case-folds, trims, dedupes, and sorts.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// wordOverlap is a Jaccard-style similarity used by the degraded lexical
// search path.
func wordOverlap(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}
	matches := 0
	for _, w := range wordsA {
		if _, ok := setB[w]; ok {
			matches++
		}
	}
	union := len(wordsA) + len(wordsB) - matches
	if union == 0 {
		return 0
	}
	return float64(matches) / float64(union)
}
