package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	"pagebuilder/internal/registry"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

type heldTimer struct {
	fn      func()
	stopped bool
}

func (t *heldTimer) Stop() bool { t.stopped = true; return true }

// heldScheduler never fires on its own.
type heldScheduler struct {
	mu     sync.Mutex
	timers []*heldTimer
}

func (s *heldScheduler) AfterFunc(_ time.Duration, fn func()) autosave.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &heldTimer{fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *heldScheduler) fire() {
	s.mu.Lock()
	var due []*heldTimer
	for _, t := range s.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// gatedStore blocks Save until release is closed.
type gatedStore struct {
	domain.PageStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Save(ctx context.Context, siteID, pageID string, doc *domain.Document) error {
	g.entered <- struct{}{}
	<-g.release
	return g.PageStore.Save(ctx, siteID, pageID, doc)
}

type fixture struct {
	svc     *service.EditorService
	store   *storage.PageStore
	emitter *service.MockEmitter
	sched   *heldScheduler
}

func newFixture(t *testing.T, mutate func(*service.Deps)) *fixture {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DialectSQLite, filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{store: storage.NewPageStore(db), emitter: &service.MockEmitter{}, sched: &heldScheduler{}}
	deps := service.Deps{
		Store:     f.store,
		Registry:  registry.NewSource(registry.Default(), "", nil),
		Modules:   service.StaticModules{Set: domain.NewModuleSet("media")},
		Journal:   storage.NewHistoryJournal(db),
		Emitter:   f.emitter,
		Scheduler: f.sched,
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.svc, err = service.NewEditorService(deps, service.Options{HistoryLimit: 10})
	require.NoError(t, err)
	return f
}

func (f *fixture) createAndOpen(t *testing.T, title, slug string) (domain.PageMeta, *editor.Session) {
	t.Helper()
	meta, err := f.svc.CreatePage(context.Background(), "site", title, slug)
	require.NoError(t, err)
	sess, err := f.svc.Open(context.Background(), "site", meta.PageID)
	require.NoError(t, err)
	return meta, sess
}

func addBlock(t *testing.T, sess *editor.Session, parentID, blockType string) string {
	t.Helper()
	var id string
	require.NoError(t, sess.Gesture(context.Background(), editor.LabelAdd, func(e *editor.Engine) error {
		var err error
		id, err = e.AddBlock(parentID, blockType, 0)
		return err
	}))
	return id
}

func TestEditorService_RequiresStoreAndRegistry(t *testing.T) {
	_, err := service.NewEditorService(service.Deps{}, service.Options{})
	assert.Error(t, err)
}

func TestEditorService_OpenReusesSession(t *testing.T) {
	f := newFixture(t, nil)
	meta, first := f.createAndOpen(t, "Home", "home")

	second, err := f.svc.Open(context.Background(), "site", meta.PageID)
	require.NoError(t, err)
	assert.Same(t, first, second)

	pages, err := f.svc.ListPages(context.Background(), "site")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "home", pages[0].Slug)
}

func TestEditorService_OpenMissingPage(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Open(context.Background(), "site", "ghost")
	var pe *domain.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEditorService_SaveWritesStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	meta, sess := f.createAndOpen(t, "Home", "home")
	hero := addBlock(t, sess, sess.Document().RootID, "hero")

	require.NoError(t, f.svc.Save(ctx, "site", meta.PageID))

	doc, _, err := f.store.Load(ctx, "site", meta.PageID)
	require.NoError(t, err)
	assert.Contains(t, doc.Nodes, hero)
	assert.False(t, sess.Dirty())
	assert.Equal(t, []string{service.EventSaved}, f.emitter.Names())
}

func TestEditorService_AutosaveFiresAfterEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	meta, sess := f.createAndOpen(t, "Home", "home")
	hero := addBlock(t, sess, sess.Document().RootID, "hero")
	require.True(t, sess.Dirty())

	f.sched.fire()

	doc, _, err := f.store.Load(ctx, "site", meta.PageID)
	require.NoError(t, err)
	assert.Contains(t, doc.Nodes, hero)
	assert.False(t, sess.Dirty())
	assert.Empty(t, f.emitter.Names(), "autosave is silent")
}

func TestEditorService_OverlappingSaveRejected(t *testing.T) {
	ctx := context.Background()
	gate := &gatedStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, func(d *service.Deps) {
		gate.PageStore = d.Store
		d.Store = gate
	})
	require.NoError(t, f.store.CreatePage(ctx, domain.PageMeta{SiteID: "site", PageID: "p1", Title: "T", Slug: "t"},
		domain.NewDocument("root", "page")))
	_, err := f.svc.Open(ctx, "site", "p1")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- f.svc.Save(ctx, "site", "p1") }()
	<-gate.entered

	assert.ErrorIs(t, f.svc.Save(ctx, "site", "p1"), domain.ErrSaveInProgress)

	close(gate.release)
	require.NoError(t, <-errc)
}

func TestEditorService_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(d *service.Deps) { d.Permissions = service.StaticPermissions{ReadOnly: true} })
	require.NoError(t, f.store.CreatePage(ctx, domain.PageMeta{SiteID: "site", PageID: "p1"}, domain.NewDocument("root", "page")))

	_, err := f.svc.Open(ctx, "site", "p1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.svc.CreatePage(ctx, "site", "T", "t")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.svc.Publish(ctx, "site", "p1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestEditorService_PublishRequiresTitleSlugAndContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	noSlug, sess := f.createAndOpen(t, "Home", "")
	addBlock(t, sess, sess.Document().RootID, "hero")

	_, err := f.svc.Publish(ctx, "site", noSlug.PageID)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "page_incomplete", ve.Reason)

	empty, _ := f.createAndOpen(t, "Other", "other")
	_, err = f.svc.Publish(ctx, "site", empty.PageID)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "page_incomplete", ve.Reason)
}

func TestEditorService_PublishBlockedByIssues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	meta, sess := f.createAndOpen(t, "Home", "home")
	root := sess.Document().RootID
	hero := addBlock(t, sess, root, "hero")
	addBlock(t, sess, hero, "image")

	res, err := f.svc.Publish(ctx, "site", meta.PageID)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "publish_blocked", ve.Reason)
	require.Len(t, ve.Issues, 1)
	assert.Equal(t, editor.IssueMissingAlt, ve.Issues[0].Type)
	assert.False(t, res.Valid)

	_, stored, err := f.store.Load(ctx, "site", meta.PageID)
	require.NoError(t, err)
	assert.Nil(t, stored.PublishedAt)
}

func TestEditorService_PublishSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	meta, sess := f.createAndOpen(t, "Home", "home")
	addBlock(t, sess, sess.Document().RootID, "hero")

	res, err := f.svc.Publish(ctx, "site", meta.PageID)

	require.NoError(t, err)
	assert.True(t, res.Valid)
	_, stored, err := f.store.Load(ctx, "site", meta.PageID)
	require.NoError(t, err)
	assert.NotNil(t, stored.PublishedAt)
	assert.Equal(t, []string{service.EventSaved, service.EventPublished}, f.emitter.Names())
}

func TestEditorService_CloseDiscardsAndReopenRestoresHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	meta, sess := f.createAndOpen(t, "Home", "home")
	root := sess.Document().RootID
	addBlock(t, sess, root, "hero")
	require.NoError(t, f.svc.Save(ctx, "site", meta.PageID))
	addBlock(t, sess, root, "section")

	require.NoError(t, f.svc.Close(ctx, "site", meta.PageID))
	assert.ErrorIs(t, f.svc.Close(ctx, "site", meta.PageID), domain.ErrSessionClosed)
	_, err := f.svc.Session("site", meta.PageID)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.Equal(t, service.EventClosed, f.emitter.Names()[len(f.emitter.Names())-1])

	reopened, err := f.svc.Open(ctx, "site", meta.PageID)
	require.NoError(t, err)
	assert.Len(t, reopened.Document().Nodes[root].Children, 1, "unsaved section discarded")
	labels, _ := reopened.HistoryLabels()
	assert.Equal(t, []string{editor.LabelAdd, editor.LabelAdd}, labels)

	ok, err := reopened.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEditorService_TokenFailureBlocksOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(d *service.Deps) { d.Tokens = failingTokens{} })
	require.NoError(t, f.store.CreatePage(ctx, domain.PageMeta{SiteID: "site", PageID: "p1"}, domain.NewDocument("root", "page")))

	_, err := f.svc.Open(ctx, "site", "p1")
	require.Error(t, err)
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) { return "", errors.New("expired") }
