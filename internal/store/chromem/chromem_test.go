package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(vals ...float32) []float32 {
	v := make([]float32, 4)
	copy(v, vals)
	return v
}

func TestUpsertAndQuery(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", vec(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "b", vec(0, 1, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "c", vec(0.9, 0.1, 0, 0), "home"))

	matches, err := idx.Query(ctx, vec(1, 0, 0, 0), nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
}

func TestQueryScoped(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", vec(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "b", vec(0.9, 0.1, 0, 0), "home"))

	matches, err := idx.Query(ctx, vec(1, 0, 0, 0), []string{"home"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestQueryMergesScopes(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", vec(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "b", vec(0.9, 0.1, 0, 0), "work/meetings"))
	require.NoError(t, idx.Upsert(ctx, "c", vec(0, 1, 0, 0), "home"))

	matches, err := idx.Query(ctx, vec(1, 0, 0, 0), []string{"work", "work/meetings"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
}

func TestUpsertReplaces(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", vec(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Upsert(ctx, "a", vec(0, 1, 0, 0), "work"))

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	matches, err := idx.Query(ctx, vec(0, 1, 0, 0), nil, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 0.001)
}

func TestDelete(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", vec(1, 0, 0, 0), "work"))
	require.NoError(t, idx.Delete(ctx, "a"))

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, idx.Delete(ctx, "a"))
}

func TestSetScope(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", vec(1, 0, 0, 0), "work"))
	require.NoError(t, idx.SetScope(ctx, "a", "archive"))

	matches, err := idx.Query(ctx, vec(1, 0, 0, 0), []string{"work"}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = idx.Query(ctx, vec(1, 0, 0, 0), []string{"archive"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
}

func TestSetScopeMissingID(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)

	assert.NoError(t, idx.SetScope(context.Background(), "ghost", "archive"))
}
