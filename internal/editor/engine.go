package editor

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/registry"
)

// Engine is the only writer of a NodeStore. Each call runs to completion and
// either applies fully or leaves the document untouched.
//
// Nesting legality for drags is decided by ValidateDrop; MoveBlock trusts its
// caller. AddBlock and PasteBlock check nesting because they are reachable
// without a drag.
type Engine struct {
	store     *NodeStore
	registry  *registry.Registry
	newID     func() string
	clipboard *Clipboard

	// changed is set by every call that alters content; Session clears it.
	changed bool
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithIDGenerator replaces the default uuid generator.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an Engine writing to store.
func NewEngine(store *NodeStore, reg *registry.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		registry:  reg,
		newID:     uuid.NewString,
		clipboard: &Clipboard{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's NodeStore.
func (e *Engine) Store() *NodeStore { return e.store }

// Clipboard returns the engine's clipboard.
func (e *Engine) Clipboard() *Clipboard { return e.clipboard }

// AddBlock creates a node of blockType from its registry defaults and
// inserts it under parentID at index (clamped). It returns the new id.
func (e *Engine) AddBlock(parentID, blockType string, index int) (string, error) {
	parent, ok := e.store.Node(parentID)
	if !ok {
		return "", fmt.Errorf("add block: parent %s: %w", parentID, domain.ErrNotFound)
	}
	if _, ok := e.registry.Lookup(blockType); !ok {
		return "", fmt.Errorf("add block: %w: %q", domain.ErrUnknownBlockType, blockType)
	}
	if !e.registry.AllowsChild(parent.Type, blockType) {
		return "", fmt.Errorf("add block: %q under %q: %w", blockType, parent.Type, domain.ErrInvalidParent)
	}
	props, err := e.registry.DefaultProps(blockType)
	if err != nil {
		return "", fmt.Errorf("add block: %w", err)
	}
	n := &domain.Node{
		ID:       e.newID(),
		Type:     blockType,
		Children: []string{},
		Props:    props,
	}
	if err := e.store.insert([]*domain.Node{n}, parentID, index); err != nil {
		return "", err
	}
	e.changed = true
	return n.ID, nil
}

// MoveBlock re-parents nodeID under newParentID at newIndex. The index is
// read against the destination's children after nodeID has been detached,
// so moving a node to its current position is a no-op. Moving a node into
// itself or its own subtree fails with domain.ErrCycle and changes nothing.
func (e *Engine) MoveBlock(nodeID, newParentID string, newIndex int) error {
	n, ok := e.store.Node(nodeID)
	if !ok {
		return fmt.Errorf("move block %s: %w", nodeID, domain.ErrNotFound)
	}
	if nodeID == e.store.doc.RootID {
		return fmt.Errorf("move block: %w", domain.ErrRootNode)
	}
	if n.Locked {
		return fmt.Errorf("move block %s: %w", nodeID, domain.ErrLocked)
	}
	if _, ok := e.store.Node(newParentID); !ok {
		return fmt.Errorf("move block: parent %s: %w", newParentID, domain.ErrNotFound)
	}
	if newParentID == nodeID || e.store.IsDescendant(nodeID, newParentID) {
		return domain.NewStructuralError("move", nodeID, domain.ErrCycle, "target "+newParentID+" is inside the moved subtree")
	}

	oldParentID := n.ParentID
	oldIndex := slices.Index(e.store.Children(oldParentID), nodeID)
	if err := e.store.detach(nodeID); err != nil {
		return err
	}
	if err := e.store.attach(nodeID, newParentID, newIndex); err != nil {
		if rerr := e.store.attach(nodeID, oldParentID, oldIndex); rerr != nil {
			return errors.Join(err, fmt.Errorf("restore %s under %s: %w", nodeID, oldParentID, rerr))
		}
		return err
	}
	if newParentID != oldParentID || slices.Index(e.store.Children(newParentID), nodeID) != oldIndex {
		e.changed = true
	}
	return nil
}

// CopyBlock deep-clones the subtree rooted at nodeID into the clipboard.
func (e *Engine) CopyBlock(nodeID string) error {
	if _, ok := e.store.Node(nodeID); !ok {
		return fmt.Errorf("copy block %s: %w", nodeID, domain.ErrNotFound)
	}
	nodes, err := cloneSubtree(e.store.doc, nodeID, e.newID, e.registry)
	if err != nil {
		return err
	}
	e.clipboard.set(nodes)
	return nil
}

// PasteBlock inserts a fresh clone of the clipboard under parentID at index
// and returns the new subtree root id. Every paste gets new ids, so pasting
// twice never collides.
func (e *Engine) PasteBlock(parentID string, index int) (string, error) {
	if e.clipboard.Empty() {
		return "", fmt.Errorf("paste block: %w", domain.ErrClipboardEmpty)
	}
	parent, ok := e.store.Node(parentID)
	if !ok {
		return "", fmt.Errorf("paste block: parent %s: %w", parentID, domain.ErrNotFound)
	}
	if !e.registry.AllowsChild(parent.Type, e.clipboard.RootType()) {
		return "", fmt.Errorf("paste block: %q under %q: %w", e.clipboard.RootType(), parent.Type, domain.ErrInvalidParent)
	}
	nodes, err := e.clipboard.materialize(e.newID, e.registry)
	if err != nil {
		return "", err
	}
	if err := e.store.insert(nodes, parentID, index); err != nil {
		return "", err
	}
	e.changed = true
	return nodes[0].ID, nil
}

// DeleteBlock removes nodeID and its subtree. A selection inside the removed
// subtree is cleared.
func (e *Engine) DeleteBlock(nodeID string) error {
	n, ok := e.store.Node(nodeID)
	if !ok {
		return fmt.Errorf("delete block %s: %w", nodeID, domain.ErrNotFound)
	}
	if nodeID == e.store.doc.RootID {
		return fmt.Errorf("delete block: %w", domain.ErrRootNode)
	}
	if n.Locked {
		return fmt.Errorf("delete block %s: %w", nodeID, domain.ErrLocked)
	}
	if err := e.store.detach(nodeID); err != nil {
		return err
	}
	removed, err := e.store.remove(nodeID)
	if err != nil {
		return err
	}
	e.changed = true
	doc := e.store.doc
	if doc.SelectedNodeID != "" && slices.Contains(removed, doc.SelectedNodeID) {
		doc.SelectedNodeID = ""
	}
	return nil
}

// SelectBlock changes the selection. An empty id clears it.
func (e *Engine) SelectBlock(nodeID string) error {
	if nodeID != "" {
		if _, ok := e.store.Node(nodeID); !ok {
			return fmt.Errorf("select block %s: %w", nodeID, domain.ErrNotFound)
		}
	}
	e.store.doc.SelectedNodeID = nodeID
	return nil
}

// UpdateBlockProps shallow-merges patch into nodeID's bag for exactly bp.
// Other breakpoints are untouched. An empty patch changes nothing.
func (e *Engine) UpdateBlockProps(nodeID string, bp domain.Breakpoint, patch domain.PropertyBag) error {
	n, err := e.editableNode("update props", nodeID, bp)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}
	bag := n.Props[bp]
	same := bag != nil
	for k, v := range patch {
		if !same {
			break
		}
		cur, ok := bag[k]
		same = ok && reflect.DeepEqual(cur, v)
	}
	if same {
		return nil
	}
	if n.Props == nil {
		n.Props = make(map[domain.Breakpoint]domain.PropertyBag)
	}
	if bag == nil {
		bag = make(domain.PropertyBag, len(patch))
		n.Props[bp] = bag
	}
	maps.Copy(bag, patch.Clone())
	e.changed = true
	return nil
}

// ClearBlockProps removes keys from nodeID's bag at bp, so the values are
// inherited from a wider breakpoint again.
func (e *Engine) ClearBlockProps(nodeID string, bp domain.Breakpoint, keys []string) error {
	n, err := e.editableNode("clear props", nodeID, bp)
	if err != nil {
		return err
	}
	bag := n.Props[bp]
	for _, k := range keys {
		if _, ok := bag[k]; ok {
			delete(bag, k)
			e.changed = true
		}
	}
	if _, ok := n.Props[bp]; ok && len(bag) == 0 && bp != domain.BreakpointDesktop {
		delete(n.Props, bp)
		e.changed = true
	}
	return nil
}

// SetBlockFlags updates the locked and hidden flags. Nil leaves a flag as is.
func (e *Engine) SetBlockFlags(nodeID string, locked, hidden *bool) error {
	n, ok := e.store.Node(nodeID)
	if !ok {
		return fmt.Errorf("set flags %s: %w", nodeID, domain.ErrNotFound)
	}
	if locked != nil && n.Locked != *locked {
		n.Locked = *locked
		e.changed = true
	}
	if hidden != nil && n.Hidden != *hidden {
		n.Hidden = *hidden
		e.changed = true
	}
	return nil
}

// SetBreakpoint switches the breakpoint being edited.
func (e *Engine) SetBreakpoint(bp domain.Breakpoint) error {
	if !bp.Valid() {
		return fmt.Errorf("set breakpoint: %w: %q", domain.ErrUnknownBreakpoint, bp)
	}
	e.store.doc.CurrentBreakpoint = bp
	return nil
}

// SetMode switches the editor mode.
func (e *Engine) SetMode(m domain.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("set mode: unknown mode %q", m)
	}
	e.store.doc.Mode = m
	return nil
}

func (e *Engine) editableNode(op, nodeID string, bp domain.Breakpoint) (*domain.Node, error) {
	if !bp.Valid() {
		return nil, fmt.Errorf("%s: %w: %q", op, domain.ErrUnknownBreakpoint, bp)
	}
	n, ok := e.store.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, nodeID, domain.ErrNotFound)
	}
	if n.Locked {
		return nil, fmt.Errorf("%s %s: %w", op, nodeID, domain.ErrLocked)
	}
	return n, nil
}
