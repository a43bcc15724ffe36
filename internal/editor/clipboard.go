package editor

import (
	"pagebuilder/internal/domain"
	"pagebuilder/internal/registry"
)

// Clipboard holds a detached copy of a subtree. It is independent of the
// document, so later edits to the source never leak into a paste.
type Clipboard struct {
	nodes []*domain.Node
}

// Empty reports whether nothing has been copied yet.
func (c *Clipboard) Empty() bool { return len(c.nodes) == 0 }

// RootType is the block type of the copied subtree root.
func (c *Clipboard) RootType() string {
	if c.Empty() {
		return ""
	}
	return c.nodes[0].Type
}

// Size is the number of nodes on the clipboard.
func (c *Clipboard) Size() int { return len(c.nodes) }

// Clear empties the clipboard.
func (c *Clipboard) Clear() { c.nodes = nil }

func (c *Clipboard) set(nodes []*domain.Node) { c.nodes = nodes }

// materialize returns a fresh clone of the clipboard with new ids.
func (c *Clipboard) materialize(newID func() string, reg *registry.Registry) ([]*domain.Node, error) {
	doc := &domain.Document{RootID: c.nodes[0].ID, Nodes: make(map[string]*domain.Node, len(c.nodes))}
	for _, n := range c.nodes {
		doc.Nodes[n.ID] = n
	}
	return cloneSubtree(doc, doc.RootID, newID, reg)
}

// cloneSubtree deep-clones the subtree at rootID, giving every node a fresh id.
// Parent/children links and registry reference props pointing inside the
// subtree are rewritten through the old->new id map; references to nodes
// outside the subtree are kept. The clone root comes first with no parent.
func cloneSubtree(doc *domain.Document, rootID string, newID func() string, reg *registry.Registry) ([]*domain.Node, error) {
	ids, err := subtreeIDs(doc, rootID)
	if err != nil {
		return nil, err
	}
	idMap := make(map[string]string, len(ids))
	for _, id := range ids {
		idMap[id] = newID()
	}

	out := make([]*domain.Node, 0, len(ids))
	for _, id := range ids {
		c := doc.Nodes[id].Clone()
		c.ID = idMap[id]
		if id == rootID {
			c.ParentID = ""
		} else {
			c.ParentID = idMap[c.ParentID]
		}
		children := make([]string, len(c.Children))
		for i, child := range c.Children {
			children[i] = idMap[child]
		}
		c.Children = children
		remapReferences(c, reg.ReferenceProps(c.Type), idMap)
		out = append(out, c)
	}
	return out, nil
}

func remapReferences(n *domain.Node, refProps []string, idMap map[string]string) {
	if len(refProps) == 0 {
		return
	}
	for _, bag := range n.Props {
		for _, prop := range refProps {
			switch v := bag[prop].(type) {
			case string:
				if mapped, ok := idMap[v]; ok {
					bag[prop] = mapped
				}
			case []any:
				for i, item := range v {
					if s, ok := item.(string); ok {
						if mapped, ok := idMap[s]; ok {
							v[i] = mapped
						}
					}
				}
			case []string:
				for i, s := range v {
					if mapped, ok := idMap[s]; ok {
						v[i] = mapped
					}
				}
			}
		}
	}
}
