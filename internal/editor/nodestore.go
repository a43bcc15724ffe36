package editor

import (
	"fmt"
	"slices"

	"pagebuilder/internal/domain"
)

// NodeStore is the canonical arena of a document's nodes. Only the mutation
// engine writes through it; every structural write checks tree integrity
// and fails with a *domain.StructuralError instead of corrupting the tree.
type NodeStore struct {
	doc *domain.Document
}

// NewNodeStore adopts doc after verifying it is a well-formed tree.
func NewNodeStore(doc *domain.Document) (*NodeStore, error) {
	if err := Verify(doc); err != nil {
		return nil, err
	}
	return &NodeStore{doc: doc}, nil
}

// Document returns the live document. Callers outside the engine must treat
// it as read-only.
func (s *NodeStore) Document() *domain.Document { return s.doc }

// Root returns the root node.
func (s *NodeStore) Root() *domain.Node { return s.doc.Root() }

// Node returns the node with the given id.
func (s *NodeStore) Node(id string) (*domain.Node, bool) {
	n, ok := s.doc.Nodes[id]
	return n, ok
}

// Children returns a copy of the ordered child ids of id.
func (s *NodeStore) Children(id string) []string {
	n, ok := s.doc.Nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(n.Children)
}

// Len is the number of nodes in the arena.
func (s *NodeStore) Len() int { return len(s.doc.Nodes) }

// IsDescendant reports whether id lies strictly below ancestorID. The walk up
// parent pointers is bounded by the arena size.
func (s *NodeStore) IsDescendant(ancestorID, id string) bool {
	return isDescendant(s.doc, ancestorID, id)
}

func isDescendant(doc *domain.Document, ancestorID, id string) bool {
	n, ok := doc.Nodes[id]
	for steps := 0; ok && n.ParentID != "" && steps <= len(doc.Nodes); steps++ {
		if n.ParentID == ancestorID {
			return true
		}
		n, ok = doc.Nodes[n.ParentID]
	}
	return false
}

// replace swaps in a whole document (undo/redo). The snapshot must already be
// a private clone.
func (s *NodeStore) replace(doc *domain.Document) error {
	if err := Verify(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// insert adds a detached subtree to the arena and links its root under
// parentID at index. nodes[0] is the subtree root (empty ParentID); the rest
// must already point at parents inside the batch. Nothing is written unless
// every check passes.
func (s *NodeStore) insert(nodes []*domain.Node, parentID string, index int) error {
	if len(nodes) == 0 {
		return nil
	}
	root := nodes[0]
	parent, ok := s.doc.Nodes[parentID]
	if !ok {
		return domain.NewStructuralError("insert", root.ID, domain.ErrDanglingParent, "parent "+parentID)
	}
	batch := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return domain.NewStructuralError("insert", root.ID, domain.ErrDuplicateID, "empty id")
		}
		if _, exists := s.doc.Nodes[n.ID]; exists || batch[n.ID] {
			return domain.NewStructuralError("insert", n.ID, domain.ErrDuplicateID, "")
		}
		batch[n.ID] = true
	}
	if root.ParentID != "" {
		return domain.NewStructuralError("insert", root.ID, domain.ErrDanglingParent, "subtree root already has a parent")
	}
	for _, n := range nodes[1:] {
		if !batch[n.ParentID] {
			return domain.NewStructuralError("insert", n.ID, domain.ErrDanglingParent, "parent outside inserted subtree")
		}
	}

	for _, n := range nodes {
		s.doc.Nodes[n.ID] = n
	}
	root.ParentID = parentID
	parent.Children = insertAt(parent.Children, index, root.ID)
	return nil
}

// attach links an existing, detached node under parentID at index.
func (s *NodeStore) attach(id, parentID string, index int) error {
	n, ok := s.doc.Nodes[id]
	if !ok {
		return domain.NewStructuralError("attach", id, domain.ErrNotFound, "")
	}
	if id == s.doc.RootID || n.ParentID != "" {
		return domain.NewStructuralError("attach", id, domain.ErrDuplicateID, "node is already attached")
	}
	parent, ok := s.doc.Nodes[parentID]
	if !ok {
		return domain.NewStructuralError("attach", id, domain.ErrDanglingParent, "parent "+parentID)
	}
	if parentID == id || isDescendant(s.doc, id, parentID) {
		return domain.NewStructuralError("attach", id, domain.ErrCycle, "parent "+parentID)
	}
	if slices.Contains(parent.Children, id) {
		return domain.NewStructuralError("attach", id, domain.ErrDuplicateID, "already a child of "+parentID)
	}
	n.ParentID = parentID
	parent.Children = insertAt(parent.Children, index, id)
	return nil
}

// detach unlinks id from its parent. The node and its subtree stay in the
// arena until removed or re-attached.
func (s *NodeStore) detach(id string) error {
	n, ok := s.doc.Nodes[id]
	if !ok {
		return domain.NewStructuralError("detach", id, domain.ErrNotFound, "")
	}
	if id == s.doc.RootID {
		return domain.NewStructuralError("detach", id, domain.ErrRootNode, "")
	}
	parent, ok := s.doc.Nodes[n.ParentID]
	if !ok {
		return domain.NewStructuralError("detach", id, domain.ErrDanglingParent, "parent "+n.ParentID)
	}
	i := slices.Index(parent.Children, id)
	if i < 0 {
		return domain.NewStructuralError("detach", id, domain.ErrDanglingParent, "missing from parent's children")
	}
	parent.Children = slices.Delete(parent.Children, i, i+1)
	n.ParentID = ""
	return nil
}

// remove deletes a detached node and its whole subtree from the arena and
// returns the removed ids.
func (s *NodeStore) remove(id string) ([]string, error) {
	n, ok := s.doc.Nodes[id]
	if !ok {
		return nil, domain.NewStructuralError("remove", id, domain.ErrNotFound, "")
	}
	if n.ParentID != "" || id == s.doc.RootID {
		return nil, domain.NewStructuralError("remove", id, domain.ErrDanglingParent, "node must be detached first")
	}
	ids, err := subtreeIDs(s.doc, id)
	if err != nil {
		return nil, err
	}
	for _, sid := range ids {
		delete(s.doc.Nodes, sid)
	}
	return ids, nil
}

// subtreeIDs lists id and all its descendants in pre-order.
func subtreeIDs(doc *domain.Document, id string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	var walk func(string) error
	walk = func(cur string) error {
		if seen[cur] {
			return domain.NewStructuralError("walk", cur, domain.ErrCycle, "")
		}
		seen[cur] = true
		n, ok := doc.Nodes[cur]
		if !ok {
			return domain.NewStructuralError("walk", cur, domain.ErrNotFound, "")
		}
		out = append(out, cur)
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify checks the tree invariants of doc: a single root, every node
// reachable exactly once, parent and children pointers consistent, no
// duplicate ids.
func Verify(doc *domain.Document) error {
	if doc == nil {
		return domain.NewStructuralError("verify", "", domain.ErrNotFound, "nil document")
	}
	root, ok := doc.Nodes[doc.RootID]
	if !ok {
		return domain.NewStructuralError("verify", doc.RootID, domain.ErrNotFound, "root")
	}
	if root.ParentID != "" {
		return domain.NewStructuralError("verify", root.ID, domain.ErrDanglingParent, "root has a parent")
	}
	seen := make(map[string]bool, len(doc.Nodes))
	stack := []string{doc.RootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			return domain.NewStructuralError("verify", id, domain.ErrCycle, "reached twice")
		}
		seen[id] = true
		n, ok := doc.Nodes[id]
		if !ok {
			return domain.NewStructuralError("verify", id, domain.ErrNotFound, "")
		}
		if n.ID != id {
			return domain.NewStructuralError("verify", id, domain.ErrDuplicateID, fmt.Sprintf("stored under %q", n.ID))
		}
		for i, c := range n.Children {
			if slices.Contains(n.Children[:i], c) {
				return domain.NewStructuralError("verify", c, domain.ErrDuplicateID, "listed twice under "+id)
			}
			child, ok := doc.Nodes[c]
			if !ok {
				return domain.NewStructuralError("verify", c, domain.ErrNotFound, "child of "+id)
			}
			if child.ParentID != id {
				return domain.NewStructuralError("verify", c, domain.ErrDanglingParent,
					fmt.Sprintf("listed under %q but points at %q", id, child.ParentID))
			}
			stack = append(stack, c)
		}
	}
	if len(seen) != len(doc.Nodes) {
		for id := range doc.Nodes {
			if !seen[id] {
				return domain.NewStructuralError("verify", id, domain.ErrDanglingParent, "unreachable from root")
			}
		}
	}
	return nil
}

// clampIndex bounds i to [0, n].
func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func insertAt(ids []string, index int, id string) []string {
	return slices.Insert(ids, clampIndex(index, len(ids)), id)
}
