package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	"pagebuilder/internal/registry"
	"pagebuilder/internal/service"
)

// Server is the MCP server of the page editor.
// It exposes every editor operation as a tool so AI agents can build pages.
type Server struct {
	mcp    *server.MCPServer
	editor *service.EditorService
	reg    *registry.Source
	siteID string
	logger *zap.Logger

	mu sync.Mutex
	// Active page context (set by open_page / create_page)
	activePageID string
}

// Deps holds the collaborators of the MCP server.
type Deps struct {
	Editor   *service.EditorService
	Registry *registry.Source
	SiteID   string
	Logger   *zap.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) (*Server, error) {
	if deps.Editor == nil || deps.Registry == nil {
		return nil, errors.New("new mcp server: editor service and registry are required")
	}
	if deps.SiteID == "" {
		return nil, errors.New("new mcp server: site id is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		editor: deps.Editor,
		reg:    deps.Registry,
		siteID: deps.SiteID,
		logger: deps.Logger,
	}

	s.mcp = server.NewMCPServer(
		"pagebuilder-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPageTools()
	s.registerBlockTools()
	s.registerEditorTools()
	s.registerResources()
	s.registerPrompts()

	return s, nil
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP stdio server", zap.String("siteID", s.siteID))
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) setActivePage(pageID string) {
	s.mu.Lock()
	s.activePageID = pageID
	s.mu.Unlock()
}

// resolvePageID returns the pageId from tool args or falls back to activePageID.
func (s *Server) resolvePageID(req mcp.CallToolRequest) (string, error) {
	if pid := req.GetString("pageId", ""); pid != "" {
		return pid, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePageID != "" {
		return s.activePageID, nil
	}
	return "", fmt.Errorf("no pageId provided and no active page set (use open_page first)")
}

// session returns the editing session of the requested page, opening it on
// first use.
func (s *Server) session(ctx context.Context, req mcp.CallToolRequest) (*editor.Session, error) {
	pageID, err := s.resolvePageID(req)
	if err != nil {
		return nil, err
	}
	return s.editor.Open(ctx, s.siteID, pageID)
}

// breakpointArg reads the optional breakpoint argument, defaulting to desktop.
func breakpointArg(req mcp.CallToolRequest) (domain.Breakpoint, error) {
	return domain.ParseBreakpoint(req.GetString("breakpoint", string(domain.BreakpointDesktop)))
}

// intArg reads an integer argument. JSON numbers arrive as float64 and are
// clamped to the int range before conversion.
func intArg(req mcp.CallToolRequest, key string, def int) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		switch {
		case math.IsNaN(v):
			return def
		case v >= math.MaxInt:
			return math.MaxInt
		case v <= math.MinInt:
			return math.MinInt
		}
		return int(v)
	case int:
		return v
	}
	return def
}

// boolArg reads an optional boolean argument. It returns nil when absent.
func boolArg(req mcp.CallToolRequest, key string) *bool {
	if v, ok := req.GetArguments()[key].(bool); ok {
		return &v
	}
	return nil
}

// requireString returns the named argument or an error naming it.
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v := req.GetString(key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

func boolPtr(v bool) *bool { return &v }
