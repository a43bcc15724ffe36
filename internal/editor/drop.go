package editor

import (
	"pagebuilder/internal/domain"
	"pagebuilder/internal/registry"
)

// DropReason explains why a drop was refused.
type DropReason string

const (
	ReasonTypeNotAllowed DropReason = "type_not_allowed"
	ReasonCycle          DropReason = "cycle"
	ReasonModuleDisabled DropReason = "module_disabled"
	ReasonLocked         DropReason = "locked"
	ReasonNotFound       DropReason = "not_found"
)

// DropResult is the verdict of ValidateDrop.
type DropResult struct {
	Valid  bool       `json:"valid"`
	Reason DropReason `json:"reason,omitempty"`
}

// DropRequest describes a proposed drag-and-drop. DraggedNodeID and
// TargetParentID are only set for existing-node drags.
type DropRequest struct {
	DraggedType    string
	TargetType     string
	DraggedNodeID  string
	TargetParentID string
}

// ValidateDrop decides whether a drag may land where proposed. It is pure and
// is the only gate for drag-originated structure changes. Checks run in
// order: nesting, cycle, module gate, then lock.
func ValidateDrop(reg *registry.Registry, modules domain.ModuleSet, doc *domain.Document, req DropRequest) DropResult {
	if !reg.AllowsChild(req.TargetType, req.DraggedType) {
		return DropResult{Reason: ReasonTypeNotAllowed}
	}
	if req.DraggedNodeID != "" {
		if req.TargetParentID == req.DraggedNodeID || isDescendant(doc, req.DraggedNodeID, req.TargetParentID) {
			return DropResult{Reason: ReasonCycle}
		}
	}
	if !modules.Has(reg.ModuleFor(req.DraggedType)) {
		return DropResult{Reason: ReasonModuleDisabled}
	}
	if req.DraggedNodeID != "" {
		if n, ok := doc.Nodes[req.DraggedNodeID]; ok && n.Locked {
			return DropResult{Reason: ReasonLocked}
		}
	}
	return DropResult{Valid: true}
}

// BuildDropRequest resolves a payload and target against doc. ok is false
// when a referenced node does not exist.
func BuildDropRequest(doc *domain.Document, payload domain.DragPayload, target domain.DropTarget) (req DropRequest, ok bool) {
	parent, found := doc.Nodes[target.ParentID]
	if !found {
		return DropRequest{}, false
	}
	req = DropRequest{TargetType: parent.Type}
	switch payload.Kind {
	case domain.PayloadNewBlock:
		req.DraggedType = payload.BlockType
	case domain.PayloadExistingNode:
		n, found := doc.Nodes[payload.NodeID]
		if !found {
			return DropRequest{}, false
		}
		req.DraggedType = n.Type
		req.DraggedNodeID = n.ID
		req.TargetParentID = target.ParentID
	default:
		return DropRequest{}, false
	}
	return req, true
}
