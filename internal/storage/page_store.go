package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
)

var (
	_ domain.PageStore   = (*PageStore)(nil)
	_ domain.PageCatalog = (*PageStore)(nil)
	_ domain.PageStore   = (*MongoPageStore)(nil)
	_ domain.PageCatalog = (*MongoPageStore)(nil)
)

// PageStore persists page documents in SQL. Each save also appends a
// revision row. Concurrent saves of one page are last-write-wins.
type PageStore struct {
	db  *DB
	now func() time.Time
}

// NewPageStore creates a PageStore on db.
func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Load returns the stored document and page metadata.
func (s *PageStore) Load(ctx context.Context, siteID, pageID string) (*domain.Document, domain.PageMeta, error) {
	row := s.db.Conn().QueryRowContext(ctx, s.db.rebind(
		`SELECT title, slug, environment, document_json, updated_at, published_at
		 FROM pages WHERE site_id = ? AND page_id = ?`), siteID, pageID,
	)
	meta := domain.PageMeta{SiteID: siteID, PageID: pageID}
	var (
		docJSON   string
		published sql.NullTime
	)
	err := row.Scan(&meta.Title, &meta.Slug, &meta.Environment, &docJSON, &meta.UpdatedAt, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, meta, fmt.Errorf("page %s/%s: %w", siteID, pageID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, meta, fmt.Errorf("load page: %w", err)
	}
	if published.Valid {
		t := published.Time
		meta.PublishedAt = &t
	}
	doc, err := decodeDocument(docJSON)
	if err != nil {
		return nil, meta, fmt.Errorf("load page %s/%s: %w", siteID, pageID, err)
	}
	return doc, meta, nil
}

// Save stores doc as the page's current content. A page that does not exist
// yet is created with empty title and slug.
func (s *PageStore) Save(ctx context.Context, siteID, pageID string, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := s.now()

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.rebind(
		`UPDATE pages SET document_json = ?, updated_at = ? WHERE site_id = ? AND page_id = ?`),
		string(data), now, siteID, pageID,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := s.insertPage(ctx, tx, domain.PageMeta{SiteID: siteID, PageID: pageID, UpdatedAt: now}, string(data)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, s.db.rebind(
		`INSERT INTO page_revisions (id, site_id, page_id, document_json, created_at) VALUES (?, ?, ?, ?, ?)`),
		uuid.NewString(), siteID, pageID, string(data), now,
	); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return tx.Commit()
}

// Publish marks the current content as published. It fails with
// domain.ErrPageIncomplete when content, title or slug is empty.
func (s *PageStore) Publish(ctx context.Context, siteID, pageID string) error {
	doc, meta, err := s.Load(ctx, siteID, pageID)
	if err != nil {
		return err
	}
	if doc.IsEmpty() || meta.Title == "" || meta.Slug == "" {
		return fmt.Errorf("publish page %s/%s: %w", siteID, pageID, domain.ErrPageIncomplete)
	}
	_, err = s.db.Conn().ExecContext(ctx, s.db.rebind(
		`UPDATE pages SET published_json = document_json, published_at = ? WHERE site_id = ? AND page_id = ?`),
		s.now(), siteID, pageID,
	)
	if err != nil {
		return fmt.Errorf("publish page: %w", err)
	}
	return nil
}

// ListPages returns the site's pages ordered by slug.
func (s *PageStore) ListPages(ctx context.Context, siteID string) ([]domain.PageMeta, error) {
	rows, err := s.db.Conn().QueryContext(ctx, s.db.rebind(
		`SELECT page_id, title, slug, environment, updated_at, published_at
		 FROM pages WHERE site_id = ? ORDER BY slug, page_id`), siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.PageMeta
	for rows.Next() {
		m := domain.PageMeta{SiteID: siteID}
		var published sql.NullTime
		if err := rows.Scan(&m.PageID, &m.Title, &m.Slug, &m.Environment, &m.UpdatedAt, &published); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if published.Valid {
			t := published.Time
			m.PublishedAt = &t
		}
		pages = append(pages, m)
	}
	return pages, rows.Err()
}

// CreatePage inserts a new page with its initial document.
func (s *PageStore) CreatePage(ctx context.Context, meta domain.PageMeta, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	meta.UpdatedAt = s.now()
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.db.rebind(`SELECT COUNT(*) FROM pages WHERE site_id = ? AND page_id = ?`),
		meta.SiteID, meta.PageID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check page: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("create page %s/%s: %w", meta.SiteID, meta.PageID, domain.ErrDuplicateID)
	}
	if err := s.insertPage(ctx, tx, meta, string(data)); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateMeta changes the title, slug and environment of a page.
func (s *PageStore) UpdateMeta(ctx context.Context, meta domain.PageMeta) error {
	res, err := s.db.Conn().ExecContext(ctx, s.db.rebind(
		`UPDATE pages SET title = ?, slug = ?, environment = ?, updated_at = ? WHERE site_id = ? AND page_id = ?`),
		meta.Title, meta.Slug, meta.Environment, s.now(), meta.SiteID, meta.PageID,
	)
	if err != nil {
		return fmt.Errorf("update page meta: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("page %s/%s: %w", meta.SiteID, meta.PageID, domain.ErrNotFound)
	}
	return nil
}

func (s *PageStore) insertPage(ctx context.Context, tx *sql.Tx, meta domain.PageMeta, docJSON string) error {
	env := meta.Environment
	if env == "" {
		env = "draft"
	}
	_, err := tx.ExecContext(ctx, s.db.rebind(
		`INSERT INTO pages (site_id, page_id, title, slug, environment, document_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		meta.SiteID, meta.PageID, meta.Title, meta.Slug, env, docJSON, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func decodeDocument(data string) (*domain.Document, error) {
	var doc domain.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Nodes == nil {
		doc.Nodes = map[string]*domain.Node{}
	}
	if doc.CurrentBreakpoint == "" {
		doc.CurrentBreakpoint = domain.BreakpointDesktop
	}
	if doc.Mode == "" {
		doc.Mode = domain.ModeEdit
	}
	return &doc, nil
}
