package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Revision is one saved version of a page.
type Revision struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"siteId"`
	PageID    string    `json:"pageId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListRevisions returns a page's revisions, newest first.
func (s *PageStore) ListRevisions(ctx context.Context, siteID, pageID string) ([]Revision, error) {
	rows, err := s.db.Conn().QueryContext(ctx, s.db.rebind(
		`SELECT id, created_at FROM page_revisions
		 WHERE site_id = ? AND page_id = ? ORDER BY created_at DESC, id DESC`), siteID, pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		r := Revision{SiteID: siteID, PageID: pageID}
		if err := rows.Scan(&r.ID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// PruneRevisions keeps the newest keep revisions of every page and returns
// how many rows were deleted.
func (s *PageStore) PruneRevisions(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	type pageKey struct{ site, page string }
	var keys []pageKey
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT site_id, page_id FROM page_revisions GROUP BY site_id, page_id HAVING COUNT(*) > `+fmt.Sprint(keep))
	if err != nil {
		return 0, fmt.Errorf("find pages to prune: %w", err)
	}
	for rows.Next() {
		var k pageKey
		if err := rows.Scan(&k.site, &k.page); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan page key: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, k := range keys {
		revs, err := s.ListRevisions(ctx, k.site, k.page)
		if err != nil {
			return deleted, err
		}
		for _, r := range revs[min(keep, len(revs)):] {
			if _, err := s.db.Conn().ExecContext(ctx, s.db.rebind(`DELETE FROM page_revisions WHERE id = ?`), r.ID); err != nil {
				return deleted, fmt.Errorf("delete revision: %w", err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// Janitor prunes old revisions on a cron schedule.
type Janitor struct {
	store  *PageStore
	keep   int
	cron   *cron.Cron
	logger *zap.Logger
}

// NewJanitor schedules PruneRevisions. schedule is a five-field cron line or a
// descriptor such as "@every 1h".
func NewJanitor(store *PageStore, schedule string, keep int, logger *zap.Logger) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Janitor{store: store, keep: keep, cron: cron.New(), logger: logger}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("schedule revision janitor %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running the schedule in the background.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := j.store.PruneRevisions(ctx, j.keep)
	if err != nil {
		j.logger.Warn("revision prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("pruned revisions", zap.Int("deleted", n))
	}
}
