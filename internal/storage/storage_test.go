package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// tickingClock returns increasing timestamps one second apart.
func tickingClock() func() time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func sampleDoc() *domain.Document {
	doc := domain.NewDocument("root", "page")
	doc.Nodes["root"].Children = []string{"hero"}
	doc.Nodes["hero"] = &domain.Node{
		ID: "hero", Type: "hero", ParentID: "root", Children: []string{},
		Props: map[domain.Breakpoint]domain.PropertyBag{
			domain.BreakpointDesktop: {"minHeight": 480.0, "align": "center"},
			domain.BreakpointMobile:  {"minHeight": 320.0},
		},
	}
	return doc
}

func TestPageStore_CreateLoadSave(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))
	s.now = tickingClock()

	require.NoError(t, s.CreatePage(ctx, domain.PageMeta{SiteID: "site", PageID: "home", Title: "Home", Slug: "home"},
		domain.NewDocument("root", "page")))

	doc, meta, err := s.Load(ctx, "site", "home")
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.Equal(t, "Home", meta.Title)
	assert.Equal(t, "draft", meta.Environment)
	assert.Nil(t, meta.PublishedAt)

	want := sampleDoc()
	require.NoError(t, s.Save(ctx, "site", "home", want))

	got, _, err := s.Load(ctx, "site", "home")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, editor.Verify(got))
}

func TestPageStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))

	_, _, err := s.Load(ctx, "site", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	meta := domain.PageMeta{SiteID: "site", PageID: "p", Title: "P", Slug: "p"}
	require.NoError(t, s.CreatePage(ctx, meta, domain.NewDocument("root", "page")))
	assert.ErrorIs(t, s.CreatePage(ctx, meta, domain.NewDocument("root", "page")), domain.ErrDuplicateID)

	assert.ErrorIs(t, s.UpdateMeta(ctx, domain.PageMeta{SiteID: "site", PageID: "ghost"}), domain.ErrNotFound)
}

func TestPageStore_SaveCreatesMissingPage(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))

	require.NoError(t, s.Save(ctx, "site", "new", sampleDoc()))

	_, meta, err := s.Load(ctx, "site", "new")
	require.NoError(t, err)
	assert.Empty(t, meta.Title)
}

func TestPageStore_Publish(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))
	require.NoError(t, s.CreatePage(ctx, domain.PageMeta{SiteID: "site", PageID: "home", Title: "Home"},
		domain.NewDocument("root", "page")))

	assert.ErrorIs(t, s.Publish(ctx, "site", "home"), domain.ErrPageIncomplete, "empty content")

	require.NoError(t, s.Save(ctx, "site", "home", sampleDoc()))
	assert.ErrorIs(t, s.Publish(ctx, "site", "home"), domain.ErrPageIncomplete, "empty slug")

	require.NoError(t, s.UpdateMeta(ctx, domain.PageMeta{SiteID: "site", PageID: "home", Title: "Home", Slug: "home", Environment: "production"}))
	require.NoError(t, s.Publish(ctx, "site", "home"))

	_, meta, err := s.Load(ctx, "site", "home")
	require.NoError(t, err)
	assert.NotNil(t, meta.PublishedAt)
	assert.Equal(t, "production", meta.Environment)
}

func TestPageStore_ListPages(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))
	for _, m := range []domain.PageMeta{
		{SiteID: "a", PageID: "2", Title: "Blog", Slug: "blog"},
		{SiteID: "a", PageID: "1", Title: "About", Slug: "about"},
		{SiteID: "b", PageID: "3", Title: "Other", Slug: "other"},
	} {
		require.NoError(t, s.CreatePage(ctx, m, domain.NewDocument("root", "page")))
	}

	pages, err := s.ListPages(ctx, "a")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "about", pages[0].Slug)
	assert.Equal(t, "blog", pages[1].Slug)
}

func TestPageStore_RevisionsAndPrune(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))
	s.now = tickingClock()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, "site", "home", sampleDoc()))
	}
	require.NoError(t, s.Save(ctx, "site", "other", sampleDoc()))

	revs, err := s.ListRevisions(ctx, "site", "home")
	require.NoError(t, err)
	require.Len(t, revs, 5)
	newest := revs[0].ID

	n, err := s.PruneRevisions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	revs, err = s.ListRevisions(ctx, "site", "home")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, newest, revs[0].ID)

	other, err := s.ListRevisions(ctx, "site", "other")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	_, err := NewJanitor(NewPageStore(openTestDB(t)), "not a schedule", 5, nil)
	assert.Error(t, err)
}

func TestJanitor_RunPrunes(t *testing.T) {
	ctx := context.Background()
	s := NewPageStore(openTestDB(t))
	s.now = tickingClock()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, "site", "home", sampleDoc()))
	}
	j, err := NewJanitor(s, "@hourly", 1, nil)
	require.NoError(t, err)

	j.run()

	revs, err := s.ListRevisions(ctx, "site", "home")
	require.NoError(t, err)
	assert.Len(t, revs, 1)
}

func TestHistoryJournal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	j := NewHistoryJournal(openTestDB(t))

	undo, redo, err := j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	assert.Empty(t, undo)
	assert.Empty(t, redo)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	in := []editor.Commit{
		{ID: "c1", Label: editor.LabelAdd, Snapshot: domain.NewDocument("root", "page"), CreatedAt: at},
		{ID: "c2", Label: editor.LabelDnD, Snapshot: sampleDoc(), CreatedAt: at.Add(time.Second)},
	}
	require.NoError(t, j.SaveHistory(ctx, "site", "home", in, in[:1]))

	undo, redo, err = j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	require.Len(t, undo, 2)
	require.Len(t, redo, 1)
	assert.Equal(t, "c2", undo[1].ID)
	assert.Equal(t, sampleDoc(), undo[1].Snapshot)
	assert.True(t, at.Equal(undo[0].CreatedAt))

	require.NoError(t, j.SaveHistory(ctx, "site", "home", in[:1], nil))
	undo, redo, err = j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	assert.Len(t, undo, 1)
	assert.Empty(t, redo)

	require.NoError(t, j.ClearPage(ctx, "site", "home"))
	undo, _, err = j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	assert.Empty(t, undo)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(DialectMySQL, ConnParams{Host: "db", User: "u", Password: "p", Database: "pages"})
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/pages?parseTime=true&charset=utf8mb4", dsn)

	dsn, err = BuildDSN(DialectPostgres, ConnParams{Host: "db", User: "u", Password: "p w", Database: "pages"})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u password='p w' dbname=pages sslmode=disable", dsn)

	_, err = BuildDSN(DialectSQLite, ConnParams{})
	assert.Error(t, err)
	_, err = BuildDSN("oracle", ConnParams{})
	assert.Error(t, err)
}
