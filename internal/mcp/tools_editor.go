package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"pagebuilder/internal/domain"
)

func (s *Server) registerEditorTools() {
	// ── set_breakpoint ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_breakpoint",
		mcp.WithDescription("Switch the breakpoint being edited"),
		mcp.WithString("breakpoint", mcp.Description("desktop, tablet or mobile"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSetBreakpoint)

	// ── set_mode ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_mode",
		mcp.WithDescription("Switch the editor mode"),
		mcp.WithString("mode", mcp.Description("edit, preview or structure"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSetMode)

	// ── validate_drop ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("validate_drop",
		mcp.WithDescription("Check whether a drag would be accepted without changing anything. Pass blockType for a new block or nodeId for an existing one."),
		mcp.WithString("blockType", mcp.Description("Block type dragged from the palette")),
		mcp.WithString("nodeId", mcp.Description("Existing node being dragged")),
		mcp.WithString("parentId", mcp.Description("Drop target parent node ID"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Drop position (optional, appends if omitted)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleValidateDrop)

	// ── drop ───────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("drop",
		mcp.WithDescription("Drop a new block or an existing node onto a parent. Refused drops change nothing."),
		mcp.WithString("blockType", mcp.Description("Block type dragged from the palette")),
		mcp.WithString("nodeId", mcp.Description("Existing node being dragged")),
		mcp.WithString("parentId", mcp.Description("Drop target parent node ID"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Drop position (optional, appends if omitted)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleDrop)

	// ── undo / redo ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last committed change"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleRedo)
}

func (s *Server) handleSetBreakpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := requireString(req, "breakpoint")
	if err != nil {
		return nil, err
	}
	bp, err := domain.ParseBreakpoint(raw)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := sess.SetBreakpoint(bp); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Editing breakpoint %s", bp)), nil
}

func (s *Server) handleSetMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := requireString(req, "mode")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := sess.SetMode(domain.Mode(raw)); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Mode set to %s", raw)), nil
}

// dropArgs builds the payload and target of validate_drop and drop.
func dropArgs(req mcp.CallToolRequest) (domain.DragPayload, domain.DropTarget, error) {
	parentID, err := requireString(req, "parentId")
	if err != nil {
		return domain.DragPayload{}, domain.DropTarget{}, err
	}
	blockType, nodeID := req.GetString("blockType", ""), req.GetString("nodeId", "")
	var payload domain.DragPayload
	switch {
	case blockType != "" && nodeID != "":
		return payload, domain.DropTarget{}, fmt.Errorf("pass either blockType or nodeId, not both")
	case blockType != "":
		payload = domain.NewBlockPayload(blockType)
	case nodeID != "":
		payload = domain.ExistingNodePayload(nodeID)
	default:
		return payload, domain.DropTarget{}, fmt.Errorf("blockType or nodeId is required")
	}
	return payload, domain.DropTarget{ParentID: parentID, Index: intArg(req, "index", appendIndex)}, nil
}

func (s *Server) handleValidateDrop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, target, err := dropArgs(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonResult(sess.ValidateDrop(payload, target))
}

func (s *Server) handleDrop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, target, err := dropArgs(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	id, err := sess.Drop(ctx, payload, target)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return jsonResult(map[string]any{"accepted": false, "reason": verr.Reason})
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"accepted": true, "blockId": id})
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	ok, err := sess.Undo(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return textResult("Nothing to undo"), nil
	}
	return jsonResult(sess.Document())
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	ok, err := sess.Redo(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return textResult("Nothing to redo"), nil
	}
	return jsonResult(sess.Document())
}
