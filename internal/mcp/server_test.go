package mcpserver

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/registry"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DialectSQLite, filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := registry.NewSource(registry.Default(), "", nil)
	svc, err := service.NewEditorService(service.Deps{
		Store:    storage.NewPageStore(db),
		Registry: src,
		Modules:  service.StaticModules{Set: domain.NewModuleSet("media")},
		Journal:  storage.NewHistoryJournal(db),
		Emitter:  &service.MockEmitter{},
	}, service.Options{HistoryLimit: 10, AutosaveDelay: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	s, err := New(Deps{Editor: svc, Registry: src, SiteID: "site"})
	require.NoError(t, err)
	return s
}

func call(t *testing.T, h toolHandler, args map[string]any) string {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func callErr(h toolHandler, args map[string]any) error {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	_, err := h(context.Background(), req)
	return err
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(text), &v))
	return v
}

func createPage(t *testing.T, s *Server) domain.PageMeta {
	t.Helper()
	return decode[domain.PageMeta](t, call(t, s.handleCreatePage, map[string]any{"title": "Home", "slug": "home"}))
}

func addBlock(t *testing.T, s *Server, args map[string]any) string {
	t.Helper()
	out := decode[map[string]string](t, call(t, s.handleAddBlock, args))
	require.NotEmpty(t, out["blockId"])
	return out["blockId"]
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestToolsRequireActivePage(t *testing.T) {
	s := newTestServer(t)

	err := callErr(s.handleGetDocument, nil)
	assert.ErrorContains(t, err, "no active page")
}

func TestCreatePageSetsActivePage(t *testing.T) {
	s := newTestServer(t)
	meta := createPage(t, s)

	doc := decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.NotEmpty(t, doc.RootID)
	assert.Len(t, doc.Nodes, 1)

	pages := decode[[]domain.PageMeta](t, call(t, s.handleListPages, nil))
	require.Len(t, pages, 1)
	assert.Equal(t, meta.PageID, pages[0].PageID)
}

func TestAddBlockUndoRedo(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)

	heroID := addBlock(t, s, map[string]any{"type": "hero"})
	doc := decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.Equal(t, []string{heroID}, doc.Nodes[doc.RootID].Children)

	undone := decode[domain.Document](t, call(t, s.handleUndo, nil))
	assert.Empty(t, undone.Nodes[undone.RootID].Children)

	redone := decode[domain.Document](t, call(t, s.handleRedo, nil))
	assert.Equal(t, []string{heroID}, redone.Nodes[redone.RootID].Children)

	assert.Equal(t, "Nothing to redo", call(t, s.handleRedo, nil))
}

func TestAddBlockRejectsBadNesting(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)

	err := callErr(s.handleAddBlock, map[string]any{"type": "column"})
	assert.ErrorIs(t, err, domain.ErrInvalidParent)
}

func TestMoveCopyPasteDelete(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	section := addBlock(t, s, map[string]any{"type": "section"})
	hero := addBlock(t, s, map[string]any{"type": "hero"})

	call(t, s.handleMoveBlock, map[string]any{"blockId": hero, "parentId": section, "index": float64(0)})
	doc := decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.Equal(t, []string{section}, doc.Nodes[doc.RootID].Children)
	assert.Equal(t, section, doc.Nodes[hero].ParentID)

	call(t, s.handleCopyBlock, map[string]any{"blockId": section})
	pasted := decode[map[string]string](t, call(t, s.handlePasteBlock, nil))["blockId"]
	doc = decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.Equal(t, []string{section, pasted}, doc.Nodes[doc.RootID].Children)
	assert.Len(t, doc.Nodes, 5)

	call(t, s.handleDeleteBlock, map[string]any{"blockId": section})
	doc = decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.Equal(t, []string{pasted}, doc.Nodes[doc.RootID].Children)
	assert.Len(t, doc.Nodes, 3)
}

func TestMoveBlockChecksDropRules(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	tabs := addBlock(t, s, map[string]any{"type": "tabs"})
	section := addBlock(t, s, map[string]any{"type": "section", "parentId": tabs})
	hero := addBlock(t, s, map[string]any{"type": "hero"})

	var verr *domain.ValidationError
	err := callErr(s.handleMoveBlock, map[string]any{"blockId": tabs, "parentId": section})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cycle", verr.Reason)

	err = callErr(s.handleMoveBlock, map[string]any{"blockId": section, "parentId": hero})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type_not_allowed", verr.Reason)
}

func TestPropsAcrossBreakpoints(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	heroID := addBlock(t, s, map[string]any{"type": "hero"})

	call(t, s.handleUpdateBlockProps, map[string]any{
		"blockId":    heroID,
		"props":      `{"minHeight": 400}`,
		"breakpoint": "tablet",
	})

	resolved := decode[map[string]any](t, call(t, s.handleResolveProps, map[string]any{"blockId": heroID, "breakpoint": "mobile"}))
	props := resolved["props"].(map[string]any)
	assert.Equal(t, float64(320), props["minHeight"], "mobile default overrides tablet")
	assert.Equal(t, "center", props["align"])

	call(t, s.handleClearBlockProps, map[string]any{"blockId": heroID, "keys": "minHeight", "breakpoint": "mobile"})
	resolved = decode[map[string]any](t, call(t, s.handleResolveProps, map[string]any{"blockId": heroID, "breakpoint": "mobile"}))
	assert.Equal(t, float64(400), resolved["props"].(map[string]any)["minHeight"])

	err := callErr(s.handleUpdateBlockProps, map[string]any{"blockId": heroID, "props": "not json"})
	assert.Error(t, err)
	err = callErr(s.handleResolveProps, map[string]any{"blockId": heroID, "breakpoint": "watch"})
	assert.ErrorIs(t, err, domain.ErrUnknownBreakpoint)
}

func TestLockedBlockRejectsDelete(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	heroID := addBlock(t, s, map[string]any{"type": "hero"})

	call(t, s.handleSetBlockFlags, map[string]any{"blockId": heroID, "locked": true})
	err := callErr(s.handleDeleteBlock, map[string]any{"blockId": heroID})
	assert.ErrorIs(t, err, domain.ErrLocked)

	err = callErr(s.handleSetBlockFlags, map[string]any{"blockId": heroID})
	assert.Error(t, err)
}

func TestDropTools(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	doc := decode[domain.Document](t, call(t, s.handleGetDocument, nil))

	res := decode[map[string]any](t, call(t, s.handleValidateDrop, map[string]any{"blockType": "column", "parentId": doc.RootID}))
	assert.Equal(t, false, res["valid"])
	assert.Equal(t, "type_not_allowed", res["reason"])

	refused := decode[map[string]any](t, call(t, s.handleDrop, map[string]any{"blockType": "map", "parentId": doc.RootID}))
	assert.Equal(t, false, refused["accepted"])
	assert.Equal(t, "module_disabled", refused["reason"])

	accepted := decode[map[string]any](t, call(t, s.handleDrop, map[string]any{"blockType": "hero", "parentId": doc.RootID}))
	assert.Equal(t, true, accepted["accepted"])
	assert.NotEmpty(t, accepted["blockId"])

	err := callErr(s.handleDrop, map[string]any{"parentId": doc.RootID})
	assert.Error(t, err)
}

func TestSelectBreakpointMode(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	heroID := addBlock(t, s, map[string]any{"type": "hero"})

	call(t, s.handleSelectBlock, map[string]any{"blockId": heroID})
	call(t, s.handleSetBreakpoint, map[string]any{"breakpoint": "mobile"})
	call(t, s.handleSetMode, map[string]any{"mode": "preview"})

	doc := decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.Equal(t, heroID, doc.SelectedNodeID)
	assert.Equal(t, domain.BreakpointMobile, doc.CurrentBreakpoint)
	assert.Equal(t, domain.ModePreview, doc.Mode)

	assert.Error(t, callErr(s.handleSetMode, map[string]any{"mode": "zen"}))
	assert.Equal(t, "Selection cleared", call(t, s.handleSelectBlock, nil))
}

func TestPublishFlow(t *testing.T) {
	s := newTestServer(t)
	meta := createPage(t, s)
	heroID := addBlock(t, s, map[string]any{"type": "hero"})
	imageID := addBlock(t, s, map[string]any{"type": "image", "parentId": heroID})

	report := decode[map[string]any](t, call(t, s.handleValidatePublish, nil))
	assert.Equal(t, false, report["valid"])

	refused := decode[map[string]any](t, call(t, s.handlePublishPage, nil))
	assert.Equal(t, false, refused["published"])
	assert.Equal(t, "publish_blocked", refused["reason"])

	call(t, s.handleUpdateBlockProps, map[string]any{"blockId": imageID, "props": `{"alt": "Team photo"}`})
	published := decode[map[string]any](t, call(t, s.handlePublishPage, map[string]any{"pageId": meta.PageID}))
	assert.Equal(t, true, published["published"])
}

func TestSaveAndClose(t *testing.T) {
	s := newTestServer(t)
	meta := createPage(t, s)
	addBlock(t, s, map[string]any{"type": "section"})

	call(t, s.handleSavePage, nil)
	call(t, s.handleClosePage, nil)
	assert.ErrorContains(t, callErr(s.handleGetDocument, nil), "no active page")

	opened := decode[map[string]any](t, call(t, s.handleOpenPage, map[string]any{"pageId": meta.PageID}))
	doc := opened["document"].(map[string]any)
	assert.Len(t, doc["nodes"], 2, "saved section survives the reopen")
	assert.Equal(t, []any{"add"}, opened["undo"])
}

func TestIntArgClampsHugeNumbers(t *testing.T) {
	tests := []struct {
		arg  any
		want int
	}{
		{arg: float64(3), want: 3},
		{arg: 1e300, want: math.MaxInt},
		{arg: -1e300, want: math.MinInt},
		{arg: math.NaN(), want: 7},
		{arg: "3", want: 7},
	}
	for _, tt := range tests {
		var req mcp.CallToolRequest
		req.Params.Arguments = map[string]any{"index": tt.arg}
		assert.Equal(t, tt.want, intArg(req, "index", 7), "%v", tt.arg)
	}
}

func TestAddBlockWithHugeIndexAppends(t *testing.T) {
	s := newTestServer(t)
	createPage(t, s)
	first := addBlock(t, s, map[string]any{"type": "hero"})

	last := addBlock(t, s, map[string]any{"type": "hero", "index": 1e300})

	doc := decode[domain.Document](t, call(t, s.handleGetDocument, nil))
	assert.Equal(t, []string{first, last}, doc.Nodes[doc.RootID].Children)
}

func TestExtractPageIDFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{uri: "pagebuilder://page/abc-123/document", want: "abc-123"},
		{uri: "pagebuilder://page//document", want: ""},
		{uri: "pagebuilder://page/a/b/document", want: ""},
		{uri: "pagebuilder://catalog", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractPageIDFromURI(tt.uri), tt.uri)
	}
}

func TestCatalogResource(t *testing.T) {
	s := newTestServer(t)

	contents, err := s.handleCatalogResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents).Text
	types := decode[[]map[string]any](t, text)
	assert.Len(t, types, len(s.reg.Current().Names()))
}
