package editor_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
)

func TestNewNodeStore_AcceptsFreshDocument(t *testing.T) {
	store, err := editor.NewNodeStore(domain.NewDocument("root", "page"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, "root", store.Root().ID)
	assert.Empty(t, store.Children("root"))
}

func TestVerify_DetectsBrokenTrees(t *testing.T) {
	tests := []struct {
		name string
		mut  func(d *domain.Document)
		kind error
	}{
		{"missing root", func(d *domain.Document) { d.RootID = "nope" }, domain.ErrNotFound},
		{"root with parent", func(d *domain.Document) { d.Nodes["root"].ParentID = "a" }, domain.ErrDanglingParent},
		{"child missing", func(d *domain.Document) {
			d.Nodes["root"].Children = append(d.Nodes["root"].Children, "ghost")
		}, domain.ErrNotFound},
		{"parent mismatch", func(d *domain.Document) { d.Nodes["b"].ParentID = "root" }, domain.ErrDanglingParent},
		{"listed twice", func(d *domain.Document) {
			d.Nodes["root"].Children = append(d.Nodes["root"].Children, "a")
		}, domain.ErrDuplicateID},
		{"unreachable", func(d *domain.Document) {
			d.Nodes["orphan"] = &domain.Node{ID: "orphan", Type: "text", ParentID: "a"}
		}, domain.ErrDanglingParent},
		{"id mismatch", func(d *domain.Document) { d.Nodes["b"].ID = "c" }, domain.ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := twoLevelDoc()
			tt.mut(doc)
			err := editor.Verify(doc)
			require.Error(t, err)
			assert.True(t, domain.IsStructural(err))
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestVerify_NilDocument(t *testing.T) {
	assert.Error(t, editor.Verify(nil))
}

func TestNodeStore_IsDescendant(t *testing.T) {
	store, err := editor.NewNodeStore(twoLevelDoc())
	require.NoError(t, err)

	assert.True(t, store.IsDescendant("root", "b"))
	assert.True(t, store.IsDescendant("a", "b"))
	assert.False(t, store.IsDescendant("b", "a"))
	assert.False(t, store.IsDescendant("a", "a"))
	assert.False(t, store.IsDescendant("a", "missing"))
}

func TestNodeStore_ChildrenIsACopy(t *testing.T) {
	store, err := editor.NewNodeStore(twoLevelDoc())
	require.NoError(t, err)

	kids := store.Children("root")
	kids[0] = "mutated"
	assert.Equal(t, []string{"a"}, store.Children("root"))
	assert.Nil(t, store.Children("missing"))
}

// twoLevelDoc builds root -> a(section) -> b(text).
func twoLevelDoc() *domain.Document {
	doc := domain.NewDocument("root", "page")
	doc.Nodes["root"].Children = []string{"a"}
	doc.Nodes["a"] = &domain.Node{ID: "a", Type: "section", ParentID: "root", Children: []string{"b"}}
	doc.Nodes["b"] = &domain.Node{ID: "b", Type: "text", ParentID: "a", Children: []string{}}
	return doc
}
