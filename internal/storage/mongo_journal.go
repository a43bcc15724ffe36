package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"pagebuilder/internal/editor"
)

var _ editor.Journal = (*MongoHistoryJournal)(nil)

// mongoHistory holds both stacks of one page in a single record, keyed like
// the page itself.
type mongoHistory struct {
	ID     string       `bson:"_id"`
	SiteID string       `bson:"siteId"`
	PageID string       `bson:"pageId"`
	Undo   []mongoEntry `bson:"undo"`
	Redo   []mongoEntry `bson:"redo"`
}

type mongoEntry struct {
	ID           string    `bson:"id"`
	Label        string    `bson:"label"`
	SnapshotJSON string    `bson:"snapshotJson"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// MongoHistoryJournal is the editor.Journal of the MongoDB backend.
type MongoHistoryJournal struct {
	coll *mongo.Collection
}

// HistoryJournal returns the journal stored next to the pages.
func (s *MongoPageStore) HistoryJournal() *MongoHistoryJournal {
	return &MongoHistoryJournal{coll: s.history}
}

// LoadHistory returns both stacks, oldest first.
func (j *MongoHistoryJournal) LoadHistory(ctx context.Context, siteID, pageID string) (undo, redo []editor.Commit, err error) {
	var h mongoHistory
	err = j.coll.FindOne(ctx, bson.M{"_id": mongoKey(siteID, pageID)}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}
	if undo, err = decodeEntries(h.Undo); err != nil {
		return nil, nil, err
	}
	if redo, err = decodeEntries(h.Redo); err != nil {
		return nil, nil, err
	}
	return undo, redo, nil
}

// SaveHistory replaces the stored stacks of a page.
func (j *MongoHistoryJournal) SaveHistory(ctx context.Context, siteID, pageID string, undo, redo []editor.Commit) error {
	h := mongoHistory{ID: mongoKey(siteID, pageID), SiteID: siteID, PageID: pageID}
	var err error
	if h.Undo, err = encodeEntries(undo); err != nil {
		return err
	}
	if h.Redo, err = encodeEntries(redo); err != nil {
		return err
	}
	_, err = j.coll.ReplaceOne(ctx, bson.M{"_id": h.ID}, h, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// ClearPage removes the journal of a page.
func (j *MongoHistoryJournal) ClearPage(ctx context.Context, siteID, pageID string) error {
	_, err := j.coll.DeleteOne(ctx, bson.M{"_id": mongoKey(siteID, pageID)})
	return err
}

func encodeEntries(commits []editor.Commit) ([]mongoEntry, error) {
	out := make([]mongoEntry, 0, len(commits))
	for _, c := range commits {
		snap, err := json.Marshal(c.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		out = append(out, mongoEntry{ID: c.ID, Label: c.Label, SnapshotJSON: string(snap), CreatedAt: created.UTC()})
	}
	return out, nil
}

func decodeEntries(entries []mongoEntry) ([]editor.Commit, error) {
	var out []editor.Commit
	for _, e := range entries {
		doc, err := decodeDocument(e.SnapshotJSON)
		if err != nil {
			return nil, fmt.Errorf("history entry %s: %w", e.ID, err)
		}
		out = append(out, editor.Commit{ID: e.ID, Label: e.Label, Snapshot: doc, CreatedAt: e.CreatedAt})
	}
	return out, nil
}
