package editor

import (
	"time"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
)

// Commit labels used by the session for one completed user gesture.
const (
	LabelAdd    = "add"
	LabelDnD    = "dnd"
	LabelPaste  = "paste"
	LabelEdit   = "edit"
	LabelDelete = "delete"
)

// DefaultHistoryLimit bounds the undo stack when no limit is configured.
const DefaultHistoryLimit = 40

// Commit is one undo checkpoint: the document as it was before the gesture
// named by Label.
type Commit struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	Snapshot  *domain.Document `json:"snapshot"`
	CreatedAt time.Time        `json:"createdAt"`
}

// History keeps bounded undo and redo stacks of whole-document snapshots.
// Every snapshot is a private clone; nothing here aliases the live document.
type History struct {
	limit int
	undo  []Commit
	redo  []Commit
	now   func() time.Time
}

// NewHistory creates a History keeping at most limit undo entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, now: time.Now}
}

// Push records before as the state preceding a gesture and drops any pending
// redo entries.
func (h *History) Push(label string, before *domain.Document) Commit {
	c := Commit{
		ID:        uuid.NewString(),
		Label:     label,
		Snapshot:  before.Clone(),
		CreatedAt: h.now(),
	}
	h.undo = append(h.undo, c)
	if over := len(h.undo) - h.limit; over > 0 {
		h.undo = append([]Commit(nil), h.undo[over:]...)
	}
	h.redo = nil
	return c
}

// Undo pops the newest checkpoint, parks current on the redo stack and
// returns the document to restore. ok is false on an empty stack.
func (h *History) Undo(current *domain.Document) (restored *domain.Document, label string, ok bool) {
	if len(h.undo) == 0 {
		return nil, "", false
	}
	c := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, Commit{ID: c.ID, Label: c.Label, Snapshot: current.Clone(), CreatedAt: h.now()})
	return c.Snapshot.Clone(), c.Label, true
}

// Redo is the inverse of Undo.
func (h *History) Redo(current *domain.Document) (restored *domain.Document, label string, ok bool) {
	if len(h.redo) == 0 {
		return nil, "", false
	}
	c := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, Commit{ID: c.ID, Label: c.Label, Snapshot: current.Clone(), CreatedAt: h.now()})
	return c.Snapshot.Clone(), c.Label, true
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Labels returns the undo labels, oldest first.
func (h *History) Labels() []string {
	out := make([]string, len(h.undo))
	for i, c := range h.undo {
		out[i] = c.Label
	}
	return out
}

// Entries returns both stacks, oldest first. The commits share snapshots
// with the history and must not be modified.
func (h *History) Entries() (undo, redo []Commit) {
	return append([]Commit(nil), h.undo...), append([]Commit(nil), h.redo...)
}

// Restore replaces both stacks, e.g. from a persisted journal. Entries past
// the limit are dropped from the old end of the undo stack.
func (h *History) Restore(undo, redo []Commit) {
	if over := len(undo) - h.limit; over > 0 {
		undo = undo[over:]
	}
	h.undo = append([]Commit(nil), undo...)
	h.redo = append([]Commit(nil), redo...)
}

// Clear drops all history.
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
}
