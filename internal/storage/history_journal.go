package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagebuilder/internal/editor"
)

const (
	stackUndo = "undo"
	stackRedo = "redo"
)

var _ editor.Journal = (*HistoryJournal)(nil)

// HistoryJournal persists a page's undo/redo stacks so checkpoints survive
// an abandoned editing session. It implements editor.Journal.
type HistoryJournal struct {
	db *DB
}

// NewHistoryJournal creates a HistoryJournal on db.
func NewHistoryJournal(db *DB) *HistoryJournal {
	return &HistoryJournal{db: db}
}

// LoadHistory returns both stacks, oldest first. A page with no journal
// yields empty stacks.
func (j *HistoryJournal) LoadHistory(ctx context.Context, siteID, pageID string) (undo, redo []editor.Commit, err error) {
	rows, err := j.db.Conn().QueryContext(ctx, j.db.rebind(
		`SELECT stack, id, label, snapshot_json, created_at FROM history_entries
		 WHERE site_id = ? AND page_id = ? ORDER BY stack, position`), siteID, pageID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stack, snap string
			c           editor.Commit
		)
		if err := rows.Scan(&stack, &c.ID, &c.Label, &snap, &c.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan history entry: %w", err)
		}
		if c.Snapshot, err = decodeDocument(snap); err != nil {
			return nil, nil, fmt.Errorf("history entry %s: %w", c.ID, err)
		}
		if stack == stackRedo {
			redo = append(redo, c)
		} else {
			undo = append(undo, c)
		}
	}
	return undo, redo, rows.Err()
}

// SaveHistory replaces the stored stacks of a page.
func (j *HistoryJournal) SaveHistory(ctx context.Context, siteID, pageID string, undo, redo []editor.Commit) error {
	tx, err := j.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, j.db.rebind(
		`DELETE FROM history_entries WHERE site_id = ? AND page_id = ?`), siteID, pageID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	insert := j.db.rebind(`INSERT INTO history_entries
		(site_id, page_id, stack, position, id, label, snapshot_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, st := range []struct {
		name    string
		commits []editor.Commit
	}{{stackUndo, undo}, {stackRedo, redo}} {
		for i, c := range st.commits {
			snap, err := json.Marshal(c.Snapshot)
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			created := c.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			if _, err := tx.ExecContext(ctx, insert, siteID, pageID, st.name, i, c.ID, c.Label, string(snap), created.UTC()); err != nil {
				return fmt.Errorf("insert history entry: %w", err)
			}
		}
	}
	return tx.Commit()
}

// ClearPage removes the journal of a page.
func (j *HistoryJournal) ClearPage(ctx context.Context, siteID, pageID string) error {
	_, err := j.db.Conn().ExecContext(ctx, j.db.rebind(
		`DELETE FROM history_entries WHERE site_id = ? AND page_id = ?`), siteID, pageID)
	return err
}
