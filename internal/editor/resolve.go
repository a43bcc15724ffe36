package editor

import (
	"fmt"

	"pagebuilder/internal/domain"
)

// Resolve returns the effective properties of nodeID at bp. Values cascade
// desktop -> tablet -> mobile: a key missing at a narrower breakpoint takes
// the nearest wider value. The node's props are never modified.
func Resolve(doc *domain.Document, nodeID string, bp domain.Breakpoint) (domain.PropertyBag, error) {
	n, ok := doc.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", nodeID, domain.ErrNotFound)
	}
	return ResolveNode(n, bp)
}

// ResolveNode is Resolve for a node already in hand.
func ResolveNode(n *domain.Node, bp domain.Breakpoint) (domain.PropertyBag, error) {
	rank := bp.Rank()
	if rank < 0 {
		return nil, fmt.Errorf("resolve: %w: %q", domain.ErrUnknownBreakpoint, bp)
	}
	size := 0
	for _, b := range domain.Breakpoints[:rank+1] {
		size += len(n.Props[b])
	}
	out := make(domain.PropertyBag, size)
	for _, b := range domain.Breakpoints[:rank+1] {
		for k, v := range n.Props[b] {
			out[k] = v
		}
	}
	return out.Clone(), nil
}
