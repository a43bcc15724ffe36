package domain

// PropertyBag maps a property name to its value. Values are JSON-shaped
// (string, float64, bool, nil, []any, map[string]any).
type PropertyBag map[string]any

// Clone deep-copies the bag, including nested maps and slices.
func (p PropertyBag) Clone() PropertyBag {
	if p == nil {
		return nil
	}
	out := make(PropertyBag, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case PropertyBag:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Node is one block in the page tree. ParentID is empty only for the root.
type Node struct {
	ID       string                     `json:"id"`
	Type     string                     `json:"type"`
	ParentID string                     `json:"parentId,omitempty"`
	Children []string                   `json:"children"`
	Props    map[Breakpoint]PropertyBag `json:"props"`
	Locked   bool                       `json:"locked,omitempty"`
	Hidden   bool                       `json:"hidden,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Children != nil {
		c.Children = append(make([]string, 0, len(n.Children)), n.Children...)
	}
	if n.Props != nil {
		c.Props = make(map[Breakpoint]PropertyBag, len(n.Props))
		for bp, bag := range n.Props {
			c.Props[bp] = bag.Clone()
		}
	}
	return &c
}

// Document is the whole editable page: an id-keyed arena of nodes plus
// editor state that travels with it.
type Document struct {
	RootID            string           `json:"rootId"`
	Nodes             map[string]*Node `json:"nodes"`
	SelectedNodeID    string           `json:"selectedNodeId,omitempty"`
	CurrentBreakpoint Breakpoint       `json:"currentBreakpoint"`
	Mode              Mode             `json:"mode"`
}

// NewDocument creates a document holding a single root node.
func NewDocument(rootID, rootType string) *Document {
	return &Document{
		RootID: rootID,
		Nodes: map[string]*Node{
			rootID: {
				ID:       rootID,
				Type:     rootType,
				Children: []string{},
				Props:    map[Breakpoint]PropertyBag{BreakpointDesktop: {}},
			},
		},
		CurrentBreakpoint: BreakpointDesktop,
		Mode:              ModeEdit,
	}
}

// Clone deep-copies the document. Snapshots held by the history manager are
// always clones, never aliases of the live document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Nodes = make(map[string]*Node, len(d.Nodes))
	for id, n := range d.Nodes {
		c.Nodes[id] = n.Clone()
	}
	return &c
}

// Root returns the root node, or nil when the document is malformed.
func (d *Document) Root() *Node {
	return d.Nodes[d.RootID]
}

// IsEmpty reports whether the root has no children.
func (d *Document) IsEmpty() bool {
	root := d.Root()
	return root == nil || len(root.Children) == 0
}
