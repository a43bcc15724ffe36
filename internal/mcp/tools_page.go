package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"pagebuilder/internal/domain"
)

func (s *Server) registerPageTools() {
	// ── list_pages ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages of the site"),
	), s.handleListPages)

	// ── create_page ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a new empty page and make it the active page"),
		mcp.WithString("title", mcp.Description("Page title")),
		mcp.WithString("slug", mcp.Description("URL slug (required before publishing)")),
	), s.handleCreatePage)

	// ── open_page ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_page",
		mcp.WithDescription("Open a page for editing and make it the active page. Tools that accept pageId default to it."),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
	), s.handleOpenPage)

	// ── close_page ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("close_page",
		mcp.WithDescription("Close an editing session. Unsaved changes are discarded."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleClosePage)

	// ── get_document ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Return the full content tree of a page with selection, breakpoint and mode"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleGetDocument)

	// ── save_page ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_page",
		mcp.WithDescription("Save the page now instead of waiting for autosave"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSavePage)

	// ── validate_publish ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("validate_publish",
		mcp.WithDescription("List every issue that would block publishing (disabled modules, missing alt text, missing required props)"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleValidatePublish)

	// ── publish_page ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("publish_page",
		mcp.WithDescription("Validate, save and publish the page. Nothing is published when validation fails."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handlePublishPage)
}

func (s *Server) handleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.editor.ListPages(ctx, s.siteID)
	if err != nil {
		return nil, err
	}
	return jsonResult(pages)
}

func (s *Server) handleCreatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	meta, err := s.editor.CreatePage(ctx, s.siteID, req.GetString("title", ""), req.GetString("slug", ""))
	if err != nil {
		return nil, err
	}
	s.setActivePage(meta.PageID)
	return jsonResult(meta)
}

func (s *Server) handleOpenPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := requireString(req, "pageId")
	if err != nil {
		return nil, err
	}
	sess, err := s.editor.Open(ctx, s.siteID, pageID)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.setActivePage(pageID)
	undo, canRedo := sess.HistoryLabels()
	return jsonResult(map[string]any{
		"page":     sess.Meta(),
		"document": sess.Document(),
		"undo":     undo,
		"canRedo":  canRedo,
	})
}

func (s *Server) handleClosePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePageID(req)
	if err != nil {
		return nil, err
	}
	if err := s.editor.Close(ctx, s.siteID, pageID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.activePageID == pageID {
		s.activePageID = ""
	}
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Closed page %s", pageID)), nil
}

func (s *Server) handleGetDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonResult(sess.Document())
}

func (s *Server) handleSavePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePageID(req)
	if err != nil {
		return nil, err
	}
	if err := s.editor.Save(ctx, s.siteID, pageID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Saved page %s", pageID)), nil
}

func (s *Server) handleValidatePublish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonResult(sess.ValidatePublish())
}

func (s *Server) handlePublishPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePageID(req)
	if err != nil {
		return nil, err
	}
	res, err := s.editor.Publish(ctx, s.siteID, pageID)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		// A refused publish is an answer, not a failure.
		return jsonResult(map[string]any{"published": false, "reason": verr.Reason, "errors": verr.Issues})
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"published": true, "errors": res.Errors})
}
