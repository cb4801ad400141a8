package mcptool

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanopyHQ/xylem/internal/coordinator"
	"github.com/CanopyHQ/xylem/internal/embed"
	"github.com/CanopyHQ/xylem/internal/store/chromem"
	"github.com/CanopyHQ/xylem/internal/store/graph"
	"github.com/CanopyHQ/xylem/internal/store/meta"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	metaStore, err := meta.Open(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { metaStore.Close() })

	vecIndex, err := chromem.New()
	require.NoError(t, err)

	graphStore, err := graph.Open(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { graphStore.Close() })

	coor := coordinator.New(
		metaStore, vecIndex, graphStore,
		embed.NewLocalEmbedder(),
		log.New(io.Discard),
		coordinator.Options{},
	)
	t.Cleanup(coor.Flush)

	return NewServer(coor, "test")
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{
		Request: mcp.Request{Method: name},
	}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestStoreAndGet(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	res, err := s.handleStore(ctx, callReq("memory_store", map[string]any{
		"content": "standup moved to 9am",
		"scope":   "work/meetings",
		"tags":    []any{"schedule"},
	}))
	require.NoError(t, err)

	var rec coordinator.MemoryRecord
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "work/meetings", rec.Scope)
	assert.Equal(t, []string{"schedule"}, rec.Tags)

	res, err = s.handleGet(ctx, callReq("memory_get", map[string]any{"id": rec.ID}))
	require.NoError(t, err)

	var got coordinator.MemoryRecord
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "standup moved to 9am", got.Content)
}

func TestStoreWithMetadata(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	res, err := s.handleStore(ctx, callReq("memory_store", map[string]any{
		"content": "staging db endpoint",
		"scope":   "work/infra",
		"metadata": map[string]any{
			"env":      "staging",
			"replicas": float64(3),
		},
	}))
	require.NoError(t, err)

	var rec coordinator.MemoryRecord
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &rec))
	assert.Equal(t, "staging", rec.Metadata["env"])
	assert.Equal(t, "3", rec.Metadata["replicas"])

	res, err = s.handleGet(ctx, callReq("memory_get", map[string]any{"id": rec.ID}))
	require.NoError(t, err)
	var got coordinator.MemoryRecord
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &got))
	assert.Equal(t, "staging", got.Metadata["env"])
}

func TestStoreValidation(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, err := s.handleStore(ctx, callReq("memory_store", map[string]any{
		"scope": "work",
	}))
	assert.Error(t, err)

	res, err := s.handleStore(ctx, callReq("memory_store", map[string]any{
		"content": "hello",
		"scope":   "bad//scope",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetNotFound(t *testing.T) {
	s := setupServer(t)

	res, err := s.handleGet(context.Background(), callReq("memory_get", map[string]any{
		"id": "no-such-id",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSearch(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, err := s.handleStore(ctx, callReq("memory_store", map[string]any{
		"content": "the database migration finished on friday",
		"scope":   "work",
	}))
	require.NoError(t, err)

	res, err := s.handleSearch(ctx, callReq("memory_search", map[string]any{
		"query": "database migration",
		"scope": "work",
		"limit": float64(5),
	}))
	require.NoError(t, err)

	var resp coordinator.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Results[0].Record.Content, "migration")
}

func TestMoveAndDelete(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	res, err := s.handleStore(ctx, callReq("memory_store", map[string]any{
		"content": "quarterly numbers",
		"scope":   "work",
	}))
	require.NoError(t, err)
	var rec coordinator.MemoryRecord
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &rec))

	res, err = s.handleMove(ctx, callReq("memory_move", map[string]any{
		"ids":          []any{rec.ID, "missing-id"},
		"target_scope": "archive",
	}))
	require.NoError(t, err)

	var moves []struct {
		ID    string `json:"id"`
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &moves))
	require.Len(t, moves, 2)
	assert.True(t, moves[0].OK)
	assert.False(t, moves[1].OK)

	res, err = s.handleDelete(ctx, callReq("memory_delete", map[string]any{"id": rec.ID}))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), rec.ID)

	res, err = s.handleGet(ctx, callReq("memory_get", map[string]any{"id": rec.ID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestReconcile(t *testing.T) {
	s := setupServer(t)

	res, err := s.handleReconcile(context.Background(), callReq("memory_reconcile", nil))
	require.NoError(t, err)

	var report coordinator.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &report))
	assert.Zero(t, report.MetadataOnly)
	assert.Zero(t, report.OrphanVectors)
}
