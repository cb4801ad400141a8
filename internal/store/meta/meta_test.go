package meta

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, scope string) *coordinator.MemoryRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &coordinator.MemoryRecord{
		ID:          id,
		Content:     "content of " + id,
		Fingerprint: "fp-" + id,
		Scope:       scope,
		Category:    "note",
		Tags:        []string{"alpha", "beta"},
		Metadata:    map[string]string{"origin": "test"},
		State:       coordinator.StatePendingEmbed,
		CreatedAt:   now,
		UpdatedAt:   now,
		AccessedAt:  now,
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord("m1", "work/meetings")
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Scope, got.Scope)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, rec.Metadata, got.Metadata)
	assert.Equal(t, rec.Category, got.Category)
	assert.Equal(t, coordinator.StatePendingEmbed, got.State)
}

func TestGetNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, coordinator.ErrNotFound))
}

func TestGetUnreachableStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "m1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, coordinator.ErrStoreUnavailable))
	assert.False(t, errors.Is(err, coordinator.ErrNotFound))
}

func TestPutReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord("m1", "work")
	require.NoError(t, s.Put(ctx, rec))

	rec.Scope = "archive"
	rec.Tags = []string{"moved"}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "archive", got.Scope)
	assert.Equal(t, []string{"moved"}, got.Tags)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testRecord("m1", "work")))
	require.NoError(t, s.Delete(ctx, "m1"))

	_, err := s.Get(ctx, "m1")
	assert.True(t, errors.Is(err, coordinator.ErrNotFound))

	err = s.Delete(ctx, "m1")
	assert.True(t, errors.Is(err, coordinator.ErrNotFound))
}

func TestFindByFingerprint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	got, err := s.FindByFingerprint(ctx, "fp-none")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Put(ctx, testRecord("m1", "work")))
	got, err = s.FindByFingerprint(ctx, "fp-m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "m1", got.ID)
}

func TestListByScopePrefix_SegmentAligned(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testRecord("m1", "work")))
	require.NoError(t, s.Put(ctx, testRecord("m2", "work/meetings")))
	require.NoError(t, s.Put(ctx, testRecord("m3", "workshop")))
	require.NoError(t, s.Put(ctx, testRecord("m4", "home")))

	recs, err := s.ListByScopePrefix(ctx, "work")
	require.NoError(t, err)

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"m1", "m2"}, ids)
}

func TestListAll(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testRecord("m1", "a")))
	require.NoError(t, s.Put(ctx, testRecord("m2", "b")))

	recs, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestTouchAccess(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testRecord("m1", "work")))
	require.NoError(t, s.TouchAccess(ctx, "m1"))
	require.NoError(t, s.TouchAccess(ctx, "m1"))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
}

func TestSetState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testRecord("m1", "work")))
	require.NoError(t, s.SetState(ctx, "m1", coordinator.StateCommitted))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateCommitted, got.State)
}
