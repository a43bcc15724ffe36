package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
)

// appendIndex is clamped to the end of the children list.
const appendIndex = 1 << 30

func (s *Server) registerBlockTools() {
	// ── add_block ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_block",
		mcp.WithDescription("Add a block with its default props under a parent. Nesting rules of the block catalog apply."),
		mcp.WithString("type", mcp.Description("Block type from the catalog (see pagebuilder://catalog)"), mcp.Required()),
		mcp.WithString("parentId", mcp.Description("Parent node ID (optional, defaults to the page root)")),
		mcp.WithNumber("index", mcp.Description("Position among the parent's children (optional, appends if omitted)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleAddBlock)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Move a block under a new parent. Nesting rules apply and the index counts the parent's children without the moved block."),
		mcp.WithString("blockId", mcp.Description("Node ID to move"), mcp.Required()),
		mcp.WithString("parentId", mcp.Description("New parent node ID"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Position among the new parent's children (optional, appends if omitted)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleMoveBlock)

	// ── copy_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("copy_block",
		mcp.WithDescription("Copy a block and its subtree to the clipboard"),
		mcp.WithString("blockId", mcp.Description("Node ID to copy"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleCopyBlock)

	// ── paste_block ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("paste_block",
		mcp.WithDescription("Paste the clipboard under a parent. Every paste creates fresh node IDs."),
		mcp.WithString("parentId", mcp.Description("Parent node ID (optional, defaults to the page root)")),
		mcp.WithNumber("index", mcp.Description("Position among the parent's children (optional, appends if omitted)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handlePasteBlock)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a block and its whole subtree. Can be undone with undo."),
		mcp.WithString("blockId", mcp.Description("Node ID to delete"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)

	// ── select_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("select_block",
		mcp.WithDescription("Select a block, or clear the selection when blockId is omitted"),
		mcp.WithString("blockId", mcp.Description("Node ID (optional)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSelectBlock)

	// ── update_block_props ─────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block_props",
		mcp.WithDescription("Merge props into a block at one breakpoint. Narrower breakpoints inherit values they do not override."),
		mcp.WithString("blockId", mcp.Description("Node ID"), mcp.Required()),
		mcp.WithString("props", mcp.Description(`JSON object of props, e.g. {"text":"Hello","align":"center"}`), mcp.Required()),
		mcp.WithString("breakpoint", mcp.Description("desktop, tablet or mobile (default desktop)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleUpdateBlockProps)

	// ── clear_block_props ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("clear_block_props",
		mcp.WithDescription("Remove prop overrides at one breakpoint so the value is inherited again"),
		mcp.WithString("blockId", mcp.Description("Node ID"), mcp.Required()),
		mcp.WithString("keys", mcp.Description("Comma-separated prop names"), mcp.Required()),
		mcp.WithString("breakpoint", mcp.Description("desktop, tablet or mobile (default desktop)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleClearBlockProps)

	// ── set_block_flags ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_block_flags",
		mcp.WithDescription("Lock or hide a block. Locked blocks cannot be moved, deleted or edited."),
		mcp.WithString("blockId", mcp.Description("Node ID"), mcp.Required()),
		mcp.WithBoolean("locked", mcp.Description("Lock state (optional, unchanged if omitted)")),
		mcp.WithBoolean("hidden", mcp.Description("Hidden state (optional, unchanged if omitted)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSetBlockFlags)

	// ── resolve_props ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("resolve_props",
		mcp.WithDescription("Return the effective props of a block at a breakpoint after inheritance"),
		mcp.WithString("blockId", mcp.Description("Node ID"), mcp.Required()),
		mcp.WithString("breakpoint", mcp.Description("desktop, tablet or mobile (default desktop)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleResolveProps)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleAddBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockType, err := requireString(req, "type")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	parentID := s.parentArg(req, sess)
	var id string
	err = sess.Gesture(ctx, editor.LabelAdd, func(e *editor.Engine) error {
		id, err = e.AddBlock(parentID, blockType, intArg(req, "index", appendIndex))
		return err
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]string{"blockId": id, "parentId": parentID, "type": blockType})
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	parentID, err := requireString(req, "parentId")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	// Same checks as a drag: nesting, cycles, modules and locks.
	target := domain.DropTarget{ParentID: parentID, Index: intArg(req, "index", appendIndex)}
	if _, err := sess.Drop(ctx, domain.ExistingNodePayload(blockID), target); err != nil {
		return nil, fmt.Errorf("move block: %w", err)
	}
	return textResult(fmt.Sprintf("Moved %s under %s", blockID, parentID)), nil
}

func (s *Server) handleCopyBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := sess.Copy(blockID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Copied %s to the clipboard", blockID)), nil
}

func (s *Server) handlePasteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	parentID := s.parentArg(req, sess)
	var id string
	err = sess.Gesture(ctx, editor.LabelPaste, func(e *editor.Engine) error {
		id, err = e.PasteBlock(parentID, intArg(req, "index", appendIndex))
		return err
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]string{"blockId": id, "parentId": parentID})
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	err = sess.Gesture(ctx, editor.LabelDelete, func(e *editor.Engine) error {
		return e.DeleteBlock(blockID)
	})
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Deleted %s", blockID)), nil
}

func (s *Server) handleSelectBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	blockID := req.GetString("blockId", "")
	if err := sess.Select(blockID); err != nil {
		return nil, err
	}
	if blockID == "" {
		return textResult("Selection cleared"), nil
	}
	return textResult(fmt.Sprintf("Selected %s", blockID)), nil
}

func (s *Server) handleUpdateBlockProps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	raw, err := requireString(req, "props")
	if err != nil {
		return nil, err
	}
	var patch domain.PropertyBag
	if err := parseJSON(raw, &patch); err != nil {
		return nil, fmt.Errorf("invalid props JSON: %w", err)
	}
	bp, err := breakpointArg(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	err = sess.Gesture(ctx, editor.LabelEdit, func(e *editor.Engine) error {
		return e.UpdateBlockProps(blockID, bp, patch)
	})
	if err != nil {
		return nil, err
	}
	return s.resolved(sess, blockID, bp)
}

func (s *Server) handleClearBlockProps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	rawKeys, err := requireString(req, "keys")
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range strings.Split(rawKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	bp, err := breakpointArg(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	err = sess.Gesture(ctx, editor.LabelEdit, func(e *editor.Engine) error {
		return e.ClearBlockProps(blockID, bp, keys)
	})
	if err != nil {
		return nil, err
	}
	return s.resolved(sess, blockID, bp)
}

func (s *Server) handleSetBlockFlags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	locked, hidden := boolArg(req, "locked"), boolArg(req, "hidden")
	if locked == nil && hidden == nil {
		return nil, fmt.Errorf("locked or hidden is required")
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	err = sess.Gesture(ctx, editor.LabelEdit, func(e *editor.Engine) error {
		return e.SetBlockFlags(blockID, locked, hidden)
	})
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Updated flags of %s", blockID)), nil
}

func (s *Server) handleResolveProps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID, err := requireString(req, "blockId")
	if err != nil {
		return nil, err
	}
	bp, err := breakpointArg(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.resolved(sess, blockID, bp)
}

// parentArg returns the parentId argument or the document root.
func (s *Server) parentArg(req mcp.CallToolRequest, sess *editor.Session) string {
	if pid := req.GetString("parentId", ""); pid != "" {
		return pid
	}
	return sess.Document().RootID
}

func (s *Server) resolved(sess *editor.Session, blockID string, bp domain.Breakpoint) (*mcp.CallToolResult, error) {
	props, err := sess.Resolve(blockID, bp)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"blockId": blockID, "breakpoint": bp, "props": props})
}
