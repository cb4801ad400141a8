package vec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "vectors.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func v(vals ...float32) []float32 {
	out := make([]float32, 4)
	copy(out, vals)
	return out
}

func TestUpsertAndQuery(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", v(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "b", v(0, 1, 0, 0), "work"))

	matches, err := idx.Query(ctx, v(1, 0, 0, 0), nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
}

func TestQueryScopeFilter(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", v(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "b", v(0.9, 0.1, 0, 0), "home"))

	matches, err := idx.Query(ctx, v(1, 0, 0, 0), []string{"home"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestQueryScopeFilterWidensWindow(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	// 60 out-of-scope vectors rank closer to the query than the single
	// in-scope match, more than the initial fetch window holds.
	for i := 0; i < 60; i++ {
		id := "noise-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
		require.NoError(t, idx.Upsert(ctx, id, v(1, float32(i)*0.001, 0, 0), "home"))
	}
	require.NoError(t, idx.Upsert(ctx, "target", v(0, 1, 0, 0), "work"))

	matches, err := idx.Query(ctx, v(1, 0, 0, 0), []string{"work"}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "target", matches[0].ID)
}

func TestUpsertReplacesVector(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", v(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "a", v(0, 1, 0, 0), "work"))

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	matches, err := idx.Query(ctx, v(0, 1, 0, 0), nil, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
}

func TestDelete(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", v(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Delete(ctx, "a"))

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, idx.Delete(ctx, "a"))
}

func TestSetScope(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", v(1, 0, 0, 0), "work"))
	require.NoError(t, idx.SetScope(ctx, "a", "archive"))

	matches, err := idx.Query(ctx, v(1, 0, 0, 0), []string{"work"}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = idx.Query(ctx, v(1, 0, 0, 0), []string{"archive"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestDimensionChangeResetsIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.db")
	ctx := context.Background()

	idx, err := Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "a", v(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Close())

	idx, err = Open(path, 8)
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
