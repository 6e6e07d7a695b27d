// Package tools implements the MCP tools exposed by jira-lens.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
	"github.com/golovatskygroup/jira-lens/internal/logging"
	"github.com/golovatskygroup/jira-lens/internal/resolver"
	"github.com/golovatskygroup/jira-lens/pkg/mcp"
)

const maxLimit = 100

// Resolver is the search side used by the tools.
type Resolver interface {
	Find(ctx context.Context, query string, limit int) ([]resolver.Match, error)
	Refresh(ctx context.Context, force bool) (resolver.RefreshReport, error)
	Status() resolver.Status
}

// Catalog is the project list used by jira_list_projects.
type Catalog interface {
	Get(ctx context.Context) (*catalog.Snapshot, error)
	Clear()
}

// Handler processes tools/call requests.
type Handler struct {
	resolver Resolver
	catalog  Catalog
	logger   *slog.Logger
	tools    []mcp.Tool
	schemas  map[string]json.RawMessage
}

func NewHandler(r Resolver, c Catalog, logger *slog.Logger) *Handler {
	h := &Handler{resolver: r, catalog: c, logger: logging.OrDiscard(logger)}
	h.tools = builtinTools()
	h.schemas = make(map[string]json.RawMessage, len(h.tools))
	for _, t := range h.tools {
		h.schemas[t.Name] = t.InputSchema
	}
	return h
}

// BuiltinTools returns the tools advertised in tools/list.
func (h *Handler) BuiltinTools() []mcp.Tool {
	return append([]mcp.Tool(nil), h.tools...)
}

func (h *Handler) IsLocalTool(name string) bool {
	_, ok := h.schemas[name]
	return ok
}

func builtinTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "jira_find_project",
			Description: "Resolve a free-form project reference (typo, transliteration, partial name, or '*' for all) to Jira projects. Returns the best matches first.",
			InputSchema: json.RawMessage(fmt.Sprintf(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Project key, name or approximate spelling (e.g. 'aitex', 'TECH AI', 'москва'); '*' lists all projects"},
					"limit": {"type": "integer", "description": "Max results (default: 10)", "minimum": 1, "maximum": %d}
				},
				"required": ["query"]
			}`, maxLimit)),
		},
		{
			Name:        "jira_list_projects",
			Description: "List all Jira projects from the cached catalog, sorted by key.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"refresh": {"type": "boolean", "description": "Refetch the catalog from Jira first (default: false)", "default": false}
				}
			}`),
		},
		{
			Name:        "jira_refresh_project_index",
			Description: "Rebuild the semantic project index. Without force the call is a no-op until the refresh interval has passed.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"force": {"type": "boolean", "description": "Refetch the catalog, re-embed every project and re-enable a disabled semantic layer (default: false)", "default": false}
				}
			}`),
		},
		{
			Name:        "jira_project_index_status",
			Description: "Show catalog freshness, semantic index state and embedding usage.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}

// Handle dispatches a tool call. Argument and upstream failures are returned as error results;
// the error return is reserved for unknown tools.
func (h *Handler) Handle(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	schema, ok := h.schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if err := validateArgs(name, schema, args); err != nil {
		return errorResult(err.Error()), nil
	}

	start := time.Now()
	var res *mcp.CallToolResult
	switch name {
	case "jira_find_project":
		res = h.findProject(ctx, args)
	case "jira_list_projects":
		res = h.listProjects(ctx, args)
	case "jira_refresh_project_index":
		res = h.refreshIndex(ctx, args)
	case "jira_project_index_status":
		res = jsonResult(h.resolver.Status())
	}
	h.logger.Debug("tool call", "tool", name, "is_error", res.IsError, "duration", time.Since(start))
	return res, nil
}

type findProjectInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type findProjectOutput struct {
	Matches []resolver.Match `json:"matches"`
}

func (h *Handler) findProject(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var in findProjectInput
	if err := decodeArgs(args, &in); err != nil {
		return errorResult("Invalid input: " + err.Error())
	}
	matches, err := h.resolver.Find(ctx, in.Query, in.Limit)
	if err != nil {
		return errorResult(err.Error())
	}
	if matches == nil {
		matches = []resolver.Match{}
	}
	return jsonResult(findProjectOutput{Matches: matches})
}

type listProjectsInput struct {
	Refresh bool `json:"refresh,omitempty"`
}

type listProjectsOutput struct {
	Projects  []resolver.Match `json:"projects"`
	Count     int              `json:"count"`
	ExpiresAt time.Time        `json:"expires_at"`
	Stale     bool             `json:"stale,omitempty"`
	Warning   string           `json:"warning,omitempty"`
}

func (h *Handler) listProjects(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var in listProjectsInput
	if err := decodeArgs(args, &in); err != nil {
		return errorResult("Invalid input: " + err.Error())
	}
	if in.Refresh {
		h.catalog.Clear()
	}
	snap, err := h.catalog.Get(ctx)
	if snap == nil {
		if err == nil {
			err = catalog.ErrUpstreamUnavailable
		}
		return errorResult(err.Error())
	}

	out := listProjectsOutput{Projects: make([]resolver.Match, 0, snap.Len()), ExpiresAt: snap.ExpiresAt}
	for _, p := range snap.Sorted() {
		out.Projects = append(out.Projects, resolver.Match{Key: p.Key, Name: p.Name})
	}
	out.Count = len(out.Projects)
	if err != nil {
		out.Stale = true
		out.Warning = err.Error()
	}
	return jsonResult(out)
}

type refreshIndexInput struct {
	Force bool `json:"force,omitempty"`
}

func (h *Handler) refreshIndex(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var in refreshIndexInput
	if err := decodeArgs(args, &in); err != nil {
		return errorResult("Invalid input: " + err.Error())
	}
	rep, err := h.resolver.Refresh(ctx, in.Force)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(rep)
}

func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	return json.Unmarshal(args, dst)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: "Error: " + msg}}, IsError: true}
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(string(b))
}
