package editor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/registry"
)

// Journal persists undo/redo stacks so checkpoints outlive an abandoned
// session.
type Journal interface {
	LoadHistory(ctx context.Context, siteID, pageID string) (undo, redo []Commit, err error)
	SaveHistory(ctx context.Context, siteID, pageID string, undo, redo []Commit) error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	SiteID       string
	PageID       string
	Registry     *registry.Registry
	Modules      domain.ModuleSet
	HistoryLimit int
	Journal      Journal
	Logger       *zap.Logger
	IDGenerator  func() string
}

// Session owns one open document. It is the single coordinator between the
// mutation engine, the history and whoever persists the page. All methods are
// safe for concurrent use; calls are serialized so the tree is never seen
// mid-mutation.
type Session struct {
	mu sync.Mutex

	siteID  string
	pageID  string
	meta    domain.PageMeta
	reg     *registry.Registry
	modules domain.ModuleSet

	engine   *Engine
	history  *History
	baseline *domain.Document
	// pending is set while content differs, or may differ, from baseline.
	pending  bool
	journal  Journal
	logger   *zap.Logger

	revision      uint64
	savedRevision uint64
	closed        bool
	onChange      func()
}

// NewSession wraps an already loaded document.
func NewSession(doc *domain.Document, meta domain.PageMeta, cfg SessionConfig) (*Session, error) {
	if cfg.Registry == nil {
		return nil, errors.New("new session: registry is required")
	}
	store, err := NewNodeStore(doc)
	if err != nil {
		return nil, fmt.Errorf("new session %s/%s: %w", cfg.SiteID, cfg.PageID, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []EngineOption
	if cfg.IDGenerator != nil {
		opts = append(opts, WithIDGenerator(cfg.IDGenerator))
	}
	modules := cfg.Modules
	if modules == nil {
		modules = domain.NewModuleSet()
	}
	return &Session{
		siteID:   cfg.SiteID,
		pageID:   cfg.PageID,
		meta:     meta,
		reg:      cfg.Registry,
		modules:  modules,
		engine:   NewEngine(store, cfg.Registry, opts...),
		history:  NewHistory(cfg.HistoryLimit),
		baseline: doc.Clone(),
		journal:  cfg.Journal,
		logger:   logger.With(zap.String("siteID", cfg.SiteID), zap.String("pageID", cfg.PageID)),
	}, nil
}

// OpenSession loads the page from store and restores any journaled history.
func OpenSession(ctx context.Context, store domain.PageStore, cfg SessionConfig) (*Session, error) {
	doc, meta, err := store.Load(ctx, cfg.SiteID, cfg.PageID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", SiteID: cfg.SiteID, PageID: cfg.PageID, Err: err}
	}
	s, err := NewSession(doc, meta, cfg)
	if err != nil {
		return nil, err
	}
	if s.journal != nil {
		undo, redo, err := s.journal.LoadHistory(ctx, s.siteID, s.pageID)
		if err != nil {
			s.logger.Warn("history journal unavailable", zap.Error(err))
		} else {
			s.history.Restore(undo, redo)
		}
	}
	return s, nil
}

func (s *Session) SiteID() string { return s.siteID }
func (s *Session) PageID() string { return s.pageID }

// Meta returns the page-level data loaded with the document.
func (s *Session) Meta() domain.PageMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// SetMeta replaces the page-level data after a store round trip.
func (s *Session) SetMeta(meta domain.PageMeta) {
	s.mu.Lock()
	s.meta = meta
	s.mu.Unlock()
}

// Registry returns the catalog frozen at session start.
func (s *Session) Registry() *registry.Registry { return s.reg }

// Modules returns the enabled module set.
func (s *Session) Modules() domain.ModuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modules
}

// SetModules refreshes the enabled module set from the gate.
func (s *Session) SetModules(m domain.ModuleSet) {
	s.mu.Lock()
	s.modules = m
	s.mu.Unlock()
}

// OnChange registers fn to run after every content change. fn runs with the
// session lock held and must not call back into the session.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Document returns a copy of the live document.
func (s *Session) Document() *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.store.doc.Clone()
}

// Snapshot returns a copy of the live document and its revision, for saving.
func (s *Session) Snapshot() (*domain.Document, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.store.doc.Clone(), s.revision
}

// MarkSaved records that revision has reached the Page Store.
func (s *Session) MarkSaved(revision uint64) {
	s.mu.Lock()
	if revision > s.savedRevision {
		s.savedRevision = revision
	}
	s.mu.Unlock()
}

// Dirty reports whether there are content changes not yet saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision != s.savedRevision
}

// Revision counts content changes since the session opened.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Close ends the session. Uncommitted state is discarded with it.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.onChange = nil
	s.mu.Unlock()
}

// Resolve returns the effective props of nodeID at bp.
func (s *Session) Resolve(nodeID string, bp domain.Breakpoint) (domain.PropertyBag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Resolve(s.engine.store.doc, nodeID, bp)
}

// ── Mutation ─────────────────────────────────────────────────

// Mutate runs fn against the engine without committing. If fn fails, the
// document is rolled back to its state before the call.
func (s *Session) Mutate(fn func(*Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(fn)
}

// Gesture runs fn as one user gesture: applied atomically and committed
// under label as a single undo step.
func (s *Session) Gesture(ctx context.Context, label string, fn func(*Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutateLocked(fn); err != nil {
		return err
	}
	s.commitLocked(ctx, label)
	return nil
}

// ValidateDrop checks a drag against the live document.
func (s *Session) ValidateDrop(payload domain.DragPayload, target domain.DropTarget) DropResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateDropLocked(payload, target)
}

// Drop validates a drag and, when legal, applies it as one "dnd" gesture. A
// new-block payload returns the created id; an existing-node payload returns
// the moved id. A refused drop is a *domain.ValidationError.
func (s *Session) Drop(ctx context.Context, payload domain.DragPayload, target domain.DropTarget) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.validateDropLocked(payload, target)
	if !res.Valid {
		return "", &domain.ValidationError{Op: "drop", Reason: string(res.Reason)}
	}
	var id string
	err := s.mutateLocked(func(e *Engine) error {
		var err error
		if payload.Kind == domain.PayloadNewBlock {
			id, err = e.AddBlock(target.ParentID, payload.BlockType, target.Index)
			return err
		}
		id = payload.NodeID
		return e.MoveBlock(payload.NodeID, target.ParentID, target.Index)
	})
	if err != nil {
		return "", err
	}
	s.commitLocked(ctx, LabelDnD)
	return id, nil
}

// Select changes the selection. It is not a content change.
func (s *Session) Select(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.engine.SelectBlock(nodeID)
}

// SetBreakpoint switches the edited breakpoint. It is not a content change.
func (s *Session) SetBreakpoint(bp domain.Breakpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.engine.SetBreakpoint(bp)
}

// SetMode switches the editor mode. It is not a content change.
func (s *Session) SetMode(m domain.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.engine.SetMode(m)
}

// Copy puts a clone of nodeID's subtree on the session clipboard.
func (s *Session) Copy(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.engine.CopyBlock(nodeID)
}

// ── History ──────────────────────────────────────────────────

// Commit checkpoints the state before the pending changes under label. It
// reports false when nothing changed since the last checkpoint.
func (s *Session) Commit(ctx context.Context, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, domain.ErrSessionClosed
	}
	return s.commitLocked(ctx, label), nil
}

// Undo restores the state before the newest checkpoint. Pending uncommitted
// changes are committed first so they can be redone. It reports false on an
// empty stack.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, domain.ErrSessionClosed
	}
	s.commitLocked(ctx, LabelEdit)
	return s.travelLocked(ctx, s.history.Undo)
}

// Redo reapplies the newest undone checkpoint.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, domain.ErrSessionClosed
	}
	if s.commitLocked(ctx, LabelEdit) {
		// a fresh commit discarded the redo stack
		return false, nil
	}
	return s.travelLocked(ctx, s.history.Redo)
}

// HistoryLabels returns undo labels oldest first and whether redo is possible.
func (s *Session) HistoryLabels() (undo []string, canRedo bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Labels(), s.history.CanRedo()
}

// ── Publish ──────────────────────────────────────────────────

// ValidatePublish runs the publish checks on the live document.
func (s *Session) ValidatePublish() PublishResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ValidatePublish(s.engine.store.doc, s.reg, s.modules)
}

// ── internals ────────────────────────────────────────────────

// mutateLocked runs fn and rolls back on failure. Without a pending change
// the baseline holds the content to roll back to.
func (s *Session) mutateLocked(fn func(*Engine) error) error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	live := s.engine.store.doc
	var before *domain.Document
	if s.pending {
		before = live.Clone()
	} else {
		// the next checkpoint keeps the selection from before this change
		s.baseline.SelectedNodeID = live.SelectedNodeID
	}
	sel, bp, mode := live.SelectedNodeID, live.CurrentBreakpoint, live.Mode

	s.engine.changed = false
	err := fn(s.engine)
	changed := s.engine.changed
	s.engine.changed = false
	if err != nil {
		structural := domain.IsStructural(err)
		if structural {
			s.logger.Error("structural error", zap.Error(err))
		}
		if changed || structural {
			if before == nil {
				before = s.baseline.Clone()
			}
			before.SelectedNodeID, before.CurrentBreakpoint, before.Mode = sel, bp, mode
			if rerr := s.engine.store.replace(before); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		s.engine.store.doc.SelectedNodeID = sel
		s.engine.store.doc.CurrentBreakpoint = bp
		s.engine.store.doc.Mode = mode
		return err
	}
	if changed {
		s.pending = true
		s.changedLocked()
	}
	return nil
}

func (s *Session) commitLocked(ctx context.Context, label string) bool {
	if !s.pending {
		return false
	}
	s.pending = false
	live := s.engine.store.doc
	if contentEqual(s.baseline, live) {
		// edits that cancelled out
		s.baseline.SelectedNodeID = live.SelectedNodeID
		return false
	}
	s.history.Push(label, s.baseline)
	s.baseline = live.Clone()
	s.persistHistoryLocked(ctx)
	return true
}

func (s *Session) travelLocked(ctx context.Context, step func(*domain.Document) (*domain.Document, string, bool)) (bool, error) {
	live := s.engine.store.doc
	restored, label, ok := step(live)
	if !ok {
		return false, nil
	}
	restored.CurrentBreakpoint = live.CurrentBreakpoint
	restored.Mode = live.Mode
	if err := s.engine.store.replace(restored); err != nil {
		s.logger.Error("history snapshot rejected", zap.String("label", label), zap.Error(err))
		return false, fmt.Errorf("restore %s checkpoint: %w", label, err)
	}
	s.baseline = restored.Clone()
	s.pending = false
	s.changedLocked()
	s.persistHistoryLocked(ctx)
	return true, nil
}

func (s *Session) validateDropLocked(payload domain.DragPayload, target domain.DropTarget) DropResult {
	req, ok := BuildDropRequest(s.engine.store.doc, payload, target)
	if !ok {
		return DropResult{Reason: ReasonNotFound}
	}
	return ValidateDrop(s.reg, s.modules, s.engine.store.doc, req)
}

func (s *Session) changedLocked() {
	s.revision++
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Session) persistHistoryLocked(ctx context.Context) {
	if s.journal == nil {
		return
	}
	undo, redo := s.history.Entries()
	if err := s.journal.SaveHistory(ctx, s.siteID, s.pageID, undo, redo); err != nil {
		s.logger.Warn("history journal write failed", zap.Error(err))
	}
}

// contentEqual compares the persisted content of two documents. Selection,
// breakpoint and mode are editor state, not content.
func contentEqual(a, b *domain.Document) bool {
	return a.RootID == b.RootID && reflect.DeepEqual(a.Nodes, b.Nodes)
}
