package domain

// PayloadKind tags a DragPayload.
type PayloadKind string

const (
	PayloadNewBlock     PayloadKind = "new-block"
	PayloadExistingNode PayloadKind = "existing-node"
)

// DragPayload is what the user is dragging: a block type from the palette or
// a node already on the page.
type DragPayload struct {
	Kind      PayloadKind `json:"kind"`
	BlockType string      `json:"blockType,omitempty"`
	NodeID    string      `json:"nodeId,omitempty"`
}

// NewBlockPayload builds a palette drag payload.
func NewBlockPayload(blockType string) DragPayload {
	return DragPayload{Kind: PayloadNewBlock, BlockType: blockType}
}

// ExistingNodePayload builds a payload for dragging a node already in the tree.
func ExistingNodePayload(nodeID string) DragPayload {
	return DragPayload{Kind: PayloadExistingNode, NodeID: nodeID}
}

// DropTarget is the insertion point of a drop.
type DropTarget struct {
	ParentID string `json:"parentId"`
	Index    int    `json:"index"`
}
