package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	"pagebuilder/internal/registry"
)

// ─────────────────────────────────────────────────────────────
// Editor Service: open pages, explicit save and publish
// ─────────────────────────────────────────────────────────────

// Deps are the collaborators of an EditorService. Store and Registry are
// required; the rest fall back to permissive or no-op defaults.
type Deps struct {
	Store       domain.PageStore
	Registry    *registry.Source
	Modules     domain.ModuleGate
	Permissions domain.PermissionChecker
	Tokens      domain.TokenSource
	Journal     editor.Journal
	Emitter     EventEmitter
	Logger      *zap.Logger
	Metrics     *autosave.Metrics
	Scheduler   autosave.Scheduler
}

// Options tunes sessions opened by the service.
type Options struct {
	HistoryLimit  int
	AutosaveDelay time.Duration
	SaveTimeout   time.Duration
}

type openPage struct {
	session  *editor.Session
	autosave *autosave.Coordinator
}

// EditorService keeps one editing session per page and is the only place
// where permissions, module gating and page-level publish rules are applied.
type EditorService struct {
	deps Deps
	opts Options

	mu    sync.Mutex
	pages map[string]*openPage

	busy pageGuard
}

// NewEditorService creates an EditorService.
func NewEditorService(deps Deps, opts Options) (*EditorService, error) {
	if deps.Store == nil || deps.Registry == nil {
		return nil, errors.New("new editor service: store and registry are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Modules == nil {
		deps.Modules = StaticModules{}
	}
	if deps.Permissions == nil {
		deps.Permissions = StaticPermissions{}
	}
	if deps.Emitter == nil {
		deps.Emitter = LogEmitter{Logger: deps.Logger}
	}
	if deps.Metrics == nil {
		deps.Metrics = autosave.NewMetrics(nil)
	}
	return &EditorService{deps: deps, opts: opts, pages: make(map[string]*openPage)}, nil
}

func pageKey(siteID, pageID string) string { return siteID + "/" + pageID }

// ── Pages ──────────────────────────────────────────────────

// ListPages lists the site's pages when the store supports it.
func (s *EditorService) ListPages(ctx context.Context, siteID string) ([]domain.PageMeta, error) {
	cat, ok := s.deps.Store.(domain.PageCatalog)
	if !ok {
		return nil, errors.New("list pages: store cannot list pages")
	}
	pages, err := cat.ListPages(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// CreatePage creates an empty page with a fresh root node.
func (s *EditorService) CreatePage(ctx context.Context, siteID, title, slug string) (domain.PageMeta, error) {
	cat, ok := s.deps.Store.(domain.PageCatalog)
	if !ok {
		return domain.PageMeta{}, errors.New("create page: store cannot create pages")
	}
	meta := domain.PageMeta{SiteID: siteID, PageID: uuid.NewString(), Title: title, Slug: slug, Environment: "draft"}
	if err := s.checkPermission(ctx, siteID, meta.PageID, domain.ActionEdit); err != nil {
		return domain.PageMeta{}, err
	}
	if err := cat.CreatePage(ctx, meta, domain.NewDocument(uuid.NewString(), "page")); err != nil {
		return domain.PageMeta{}, fmt.Errorf("create page: %w", err)
	}
	return meta, nil
}

// ── Sessions ───────────────────────────────────────────────

// Open starts editing a page, or returns the session already open for it.
func (s *EditorService) Open(ctx context.Context, siteID, pageID string) (*editor.Session, error) {
	if err := s.checkPermission(ctx, siteID, pageID, domain.ActionEdit); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[pageKey(siteID, pageID)]; ok {
		return p.session, nil
	}

	modules, err := s.deps.Modules.EnabledModules(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("enabled modules: %w", err)
	}
	ctx, err = s.withToken(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := editor.OpenSession(ctx, s.deps.Store, editor.SessionConfig{
		SiteID:       siteID,
		PageID:       pageID,
		Registry:     s.deps.Registry.Current(),
		Modules:      modules,
		HistoryLimit: s.opts.HistoryLimit,
		Journal:      s.deps.Journal,
		Logger:       s.deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	coord := autosave.New(siteID, pageID, s.deps.Store, sess, autosave.Options{
		Delay:     s.opts.AutosaveDelay,
		Timeout:   s.opts.SaveTimeout,
		Tokens:    s.deps.Tokens,
		Scheduler: s.deps.Scheduler,
		Metrics:   s.deps.Metrics,
		Logger:    s.deps.Logger,
	})
	sess.OnChange(coord.Notify)
	s.pages[pageKey(siteID, pageID)] = &openPage{session: sess, autosave: coord}
	s.deps.Logger.Info("page opened", zap.String("siteID", siteID), zap.String("pageID", pageID))
	return sess, nil
}

// Session returns the open session of a page.
func (s *EditorService) Session(siteID, pageID string) (*editor.Session, error) {
	p, err := s.page(siteID, pageID)
	if err != nil {
		return nil, err
	}
	return p.session, nil
}

// Close ends the session of a page. Unsaved edits are discarded; journaled
// history survives for the next Open.
func (s *EditorService) Close(ctx context.Context, siteID, pageID string) error {
	s.mu.Lock()
	p, ok := s.pages[pageKey(siteID, pageID)]
	delete(s.pages, pageKey(siteID, pageID))
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("close page %s/%s: %w", siteID, pageID, domain.ErrSessionClosed)
	}
	p.autosave.Stop()
	dirty := p.session.Dirty()
	p.session.Close()
	s.deps.Emitter.Emit(ctx, EventClosed, map[string]any{"siteId": siteID, "pageId": pageID, "discardedChanges": dirty})
	return nil
}

// ── Save / Publish ─────────────────────────────────────────

// Save persists the live document now. Failures are returned as
// *domain.PersistenceError and the in-memory edits are kept.
func (s *EditorService) Save(ctx context.Context, siteID, pageID string) error {
	if err := s.checkPermission(ctx, siteID, pageID, domain.ActionEdit); err != nil {
		return err
	}
	p, err := s.page(siteID, pageID)
	if err != nil {
		return err
	}
	key := pageKey(siteID, pageID)
	if !s.busy.TryLock(key) {
		return fmt.Errorf("save page %s: %w", key, domain.ErrSaveInProgress)
	}
	defer s.busy.Unlock(key)
	return s.saveLocked(ctx, p)
}

// Publish validates the page and, when clean, saves and publishes it. A
// blocked publish returns a *domain.ValidationError listing every issue.
func (s *EditorService) Publish(ctx context.Context, siteID, pageID string) (editor.PublishResult, error) {
	if err := s.checkPermission(ctx, siteID, pageID, domain.ActionPublish); err != nil {
		return editor.PublishResult{}, err
	}
	p, err := s.page(siteID, pageID)
	if err != nil {
		return editor.PublishResult{}, err
	}
	key := pageKey(siteID, pageID)
	if !s.busy.TryLock(key) {
		return editor.PublishResult{}, fmt.Errorf("publish page %s: %w", key, domain.ErrSaveInProgress)
	}
	defer s.busy.Unlock(key)

	modules, err := s.deps.Modules.EnabledModules(ctx, siteID)
	if err != nil {
		return editor.PublishResult{}, fmt.Errorf("enabled modules: %w", err)
	}
	p.session.SetModules(modules)

	meta := p.session.Meta()
	if meta.Title == "" || meta.Slug == "" || p.session.Document().IsEmpty() {
		return editor.PublishResult{}, &domain.ValidationError{Op: "publish", Reason: "page_incomplete"}
	}
	res := p.session.ValidatePublish()
	if !res.Valid {
		return res, &domain.ValidationError{Op: "publish", Reason: "publish_blocked", Issues: res.Errors}
	}

	if err := s.saveLocked(ctx, p); err != nil {
		return res, err
	}
	tctx, err := s.withToken(ctx)
	if err != nil {
		return res, err
	}
	if err := s.deps.Store.Publish(tctx, siteID, pageID); err != nil {
		return res, &domain.PersistenceError{Op: "publish", SiteID: siteID, PageID: pageID, Err: err}
	}
	s.deps.Emitter.Emit(ctx, EventPublished, map[string]any{"siteId": siteID, "pageId": pageID})
	return res, nil
}

// Shutdown stops every autosave timer and waits for explicit saves to end.
func (s *EditorService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for _, p := range s.pages {
		p.autosave.Stop()
	}
	s.mu.Unlock()
	s.busy.WaitAll(ctx)
}

// ── internals ──────────────────────────────────────────────

func (s *EditorService) saveLocked(ctx context.Context, p *openPage) error {
	if s.opts.SaveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SaveTimeout)
		defer cancel()
	}
	if err := p.autosave.Flush(ctx); err != nil {
		s.deps.Logger.Warn("save failed", zap.String("siteID", p.session.SiteID()),
			zap.String("pageID", p.session.PageID()), zap.Error(err))
		return err
	}
	s.deps.Emitter.Emit(ctx, EventSaved, map[string]any{
		"siteId":   p.session.SiteID(),
		"pageId":   p.session.PageID(),
		"revision": p.session.Revision(),
	})
	return nil
}

func (s *EditorService) page(siteID, pageID string) (*openPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageKey(siteID, pageID)]
	if !ok {
		return nil, fmt.Errorf("page %s/%s is not open: %w", siteID, pageID, domain.ErrSessionClosed)
	}
	return p, nil
}

func (s *EditorService) checkPermission(ctx context.Context, siteID, pageID string, action domain.Action) error {
	ok, err := s.deps.Permissions.Allowed(ctx, siteID, pageID, action)
	if err != nil {
		return fmt.Errorf("check %s permission: %w", action, err)
	}
	if !ok {
		return fmt.Errorf("%s page %s/%s: %w", action, siteID, pageID, domain.ErrPermissionDenied)
	}
	return nil
}

func (s *EditorService) withToken(ctx context.Context) (context.Context, error) {
	if s.deps.Tokens == nil {
		return ctx, nil
	}
	tok, err := s.deps.Tokens.Token(ctx)
	if err != nil {
		return ctx, fmt.Errorf("refresh token: %w", err)
	}
	return domain.WithAccessToken(ctx, tok), nil
}
