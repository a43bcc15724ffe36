package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCycle             = errors.New("cycle")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrDanglingParent    = errors.New("dangling parent")
	ErrInvalidParent     = errors.New("invalid parent")
	ErrRootNode          = errors.New("operation not allowed on root node")
	ErrLocked            = errors.New("node is locked")
	ErrClipboardEmpty    = errors.New("clipboard is empty")
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")
	ErrUnknownBlockType  = errors.New("unknown block type")
	ErrPageIncomplete    = errors.New("page is missing content, title or slug")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrSessionClosed     = errors.New("session closed")
	ErrSaveInProgress    = errors.New("save already in progress")
)

// StructuralError reports a broken tree contract: a cycle, a missing node, a
// duplicate id or a dangling parent. Reaching one through the public API
// means a caller bypassed the drop validator, so it is never shown to end
// users as-is.
type StructuralError struct {
	Op     string
	NodeID string
	Kind   error
	Detail string
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Op, e.NodeID, e.Kind)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *StructuralError) Unwrap() error { return e.Kind }

// NewStructuralError builds a StructuralError.
func NewStructuralError(op, nodeID string, kind error, detail string) *StructuralError {
	return &StructuralError{Op: op, NodeID: nodeID, Kind: kind, Detail: detail}
}

// Issue is one publish blocker found in the tree.
type Issue struct {
	Type      string `json:"type"`
	ModuleKey string `json:"moduleKey,omitempty"`
	NodeID    string `json:"nodeId,omitempty"`
	Prop      string `json:"prop,omitempty"`
}

// ValidationError is an expected, user-facing rejection: a refused drop or a
// blocked publish. The operation did not proceed.
type ValidationError struct {
	Op     string
	Reason string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("%s rejected: %s (%d issues)", e.Op, e.Reason, len(e.Issues))
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// PersistenceError wraps a Page Store failure. Explicit save and publish
// surface it; autosave swallows it.
type PersistenceError struct {
	Op     string
	SiteID string
	PageID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s page %s/%s: %v", e.Op, e.SiteID, e.PageID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsStructural reports whether err carries a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
