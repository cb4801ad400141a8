// Package mcptool exposes the memory coordinator as MCP tools over stdio,
// so agent runtimes can store and recall memories without linking the Go
// API directly.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/CanopyHQ/xylem/internal/coordinator"
)

// Server wraps an MCP stdio server bound to a coordinator.
type Server struct {
	mcp  *server.MCPServer
	coor *coordinator.Coordinator
}

// NewServer builds the MCP server and registers every memory tool.
func NewServer(coor *coordinator.Coordinator, version string) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			"xylem",
			version,
			server.WithLogging(),
		),
		coor: coor,
	}
	s.registerTools()
	return s
}

// ServeStdio blocks, serving MCP requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(buildStoreTool(), s.handleStore)
	s.mcp.AddTool(buildGetTool(), s.handleGet)
	s.mcp.AddTool(buildSearchTool(), s.handleSearch)
	s.mcp.AddTool(buildMoveTool(), s.handleMove)
	s.mcp.AddTool(buildDeleteTool(), s.handleDelete)
	s.mcp.AddTool(buildNeighborsTool(), s.handleNeighbors)
	s.mcp.AddTool(buildReconcileTool(), s.handleReconcile)
}

func buildStoreTool() mcp.Tool {
	return mcp.NewTool(
		"memory_store",
		mcp.WithDescription("Stores a memory under a scope and returns the full record. Identical content in the same scope returns the existing record instead of creating a duplicate."),
		mcp.WithString("content",
			mcp.Description("Textual content to remember"),
			mcp.Required(),
		),
		mcp.WithString("scope",
			mcp.Description("Hierarchical scope path, e.g. 'work/meetings'"),
			mcp.Required(),
		),
		mcp.WithString("category",
			mcp.Description("Free-form category label"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags to attach to the memory"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Key/value metadata to attach to the memory"),
		),
		mcp.WithBoolean("allow_duplicates",
			mcp.Description("Store even when identical content already exists in the scope"),
		),
	)
}

func buildGetTool() mcp.Tool {
	return mcp.NewTool(
		"memory_get",
		mcp.WithDescription("Retrieves a memory by ID and records the access."),
		mcp.WithString("id",
			mcp.Description("Memory ID returned by memory_store"),
			mcp.Required(),
		),
	)
}

func buildSearchTool() mcp.Tool {
	return mcp.NewTool(
		"memory_search",
		mcp.WithDescription("Searches memories by semantic similarity, optionally restricted to a scope and its child scopes."),
		mcp.WithString("query",
			mcp.Description("Natural language query"),
			mcp.Required(),
		),
		mcp.WithString("scope",
			mcp.Description("Restrict results to this scope (empty searches everywhere)"),
		),
		mcp.WithBoolean("include_child_scopes",
			mcp.Description("Also match memories in descendant scopes"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 10)"),
		),
		mcp.WithNumber("similarity_threshold",
			mcp.Description("Drop results scoring below this value, in [0,1]"),
		),
	)
}

func buildMoveTool() mcp.Tool {
	return mcp.NewTool(
		"memory_move",
		mcp.WithDescription("Moves memories to a different scope. Reports per-memory success or failure."),
		mcp.WithArray("ids",
			mcp.Description("Memory IDs to move"),
			mcp.Required(),
		),
		mcp.WithString("target_scope",
			mcp.Description("Destination scope path"),
			mcp.Required(),
		),
	)
}

func buildDeleteTool() mcp.Tool {
	return mcp.NewTool(
		"memory_delete",
		mcp.WithDescription("Deletes a memory from every backing store."),
		mcp.WithString("id",
			mcp.Description("Memory ID to delete"),
			mcp.Required(),
		),
	)
}

func buildNeighborsTool() mcp.Tool {
	return mcp.NewTool(
		"memory_neighbors",
		mcp.WithDescription("Lists memories associated with the given memory, strongest association first."),
		mcp.WithString("id",
			mcp.Description("Memory ID"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of neighbors (default 5)"),
		),
	)
}

func buildReconcileTool() mcp.Tool {
	return mcp.NewTool(
		"memory_reconcile",
		mcp.WithDescription("Repairs divergence between the metadata store and the vector index and reports what was fixed."),
	)
}

func (s *Server) handleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("content parameter is required")
	}
	scope, _ := args["scope"].(string)
	if scope == "" {
		return nil, fmt.Errorf("scope parameter is required")
	}
	category, _ := args["category"].(string)
	allowDup, _ := args["allow_duplicates"].(bool)

	rec, err := s.coor.Store(ctx, coordinator.StoreRequest{
		Content:         content,
		Scope:           scope,
		Category:        category,
		Tags:            stringSlice(args["tags"]),
		Metadata:        stringMap(args["metadata"]),
		AllowDuplicates: allowDup,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	rec, err := s.coor.Get(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	scope, _ := args["scope"].(string)
	includeChildren, _ := args["include_child_scopes"].(bool)

	resp, err := s.coor.Search(ctx, coordinator.SearchRequest{
		Query:               query,
		Scope:               scope,
		IncludeChildScopes:  includeChildren,
		Limit:               intArg(args["limit"]),
		SimilarityThreshold: floatArg(args["similarity_threshold"]),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(resp)
}

func (s *Server) handleMove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	ids := stringSlice(args["ids"])
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids parameter is required")
	}
	target, _ := args["target_scope"].(string)
	if target == "" {
		return nil, fmt.Errorf("target_scope parameter is required")
	}

	results, err := s.coor.Move(ctx, ids, target)
	if err != nil {
		return toolError(err)
	}

	type moved struct {
		ID    string `json:"id"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	out := make([]moved, 0, len(results))
	for _, r := range results {
		m := moved{ID: r.ID, OK: r.Err == nil}
		if r.Err != nil {
			m.Error = r.Err.Error()
		}
		out = append(out, m)
	}
	return jsonResult(out)
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}

	if err := s.coor.Delete(ctx, id); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %s", id)), nil
}

func (s *Server) handleNeighbors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, _ := args["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("id parameter is required")
	}
	limit := intArg(args["limit"])
	if limit <= 0 {
		limit = 5
	}

	edges, err := s.coor.Neighbors(ctx, id, limit)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(edges)
}

func (s *Server) handleReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.coor.Reconcile(ctx)
	if err != nil && report == nil {
		return toolError(err)
	}
	return jsonResult(report)
}

// jsonResult marshals v into a compact text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError maps coordinator errors onto tool-level errors so clients see
// the failure instead of a protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		return mcp.NewToolResultError("memory not found"), nil
	case errors.Is(err, coordinator.ErrValidation):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return nil, err
	}
}

// stringSlice coerces an MCP array argument into []string. Arrays arrive as
// []any; a JSON-encoded string is accepted too.
func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
		return nil
	default:
		return nil
	}
}

// stringMap coerces an MCP object argument into map[string]string. Non-string
// values are stringified through their JSON encoding.
func stringMap(raw any) map[string]string {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[k] = string(b)
	}
	return out
}

func intArg(raw any) int {
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func floatArg(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
