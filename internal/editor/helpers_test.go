package editor_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	"pagebuilder/internal/registry"
)

// seqIDs returns a deterministic id generator: n1, n2, ...
func seqIDs() func() string {
	i := 0
	return func() string {
		i++
		return fmt.Sprintf("n%d", i)
	}
}

func newEngine(t *testing.T) *editor.Engine {
	t.Helper()
	store, err := editor.NewNodeStore(domain.NewDocument("root", "page"))
	require.NoError(t, err)
	return editor.NewEngine(store, registry.Default(), editor.WithIDGenerator(seqIDs()))
}

func mustAdd(t *testing.T, e *editor.Engine, parentID, blockType string, index int) string {
	t.Helper()
	id, err := e.AddBlock(parentID, blockType, index)
	require.NoError(t, err)
	return id
}

func docJSON(t *testing.T, doc *domain.Document) string {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}

// subtreeShape renders the types of a subtree in pre-order with depth, so two
// isomorphic subtrees render the same regardless of ids.
func subtreeShape(doc *domain.Document, id string) []string {
	var out []string
	var walk func(string, int)
	walk = func(cur string, depth int) {
		n := doc.Nodes[cur]
		out = append(out, fmt.Sprintf("%d:%s", depth, n.Type))
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(id, 0)
	return out
}

func subtreeSet(doc *domain.Document, id string) map[string]bool {
	set := map[string]bool{}
	var walk func(string)
	walk = func(cur string) {
		set[cur] = true
		for _, c := range doc.Nodes[cur].Children {
			walk(c)
		}
	}
	walk(id)
	return set
}
