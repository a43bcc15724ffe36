package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
)

func TestMongoEntries_RoundTrip(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	in := []editor.Commit{
		{ID: "c1", Label: editor.LabelAdd, Snapshot: domain.NewDocument("root", "page"), CreatedAt: at},
		{ID: "c2", Label: editor.LabelDnD, Snapshot: sampleDoc()},
	}

	entries, err := encodeEntries(in)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[1].CreatedAt.IsZero())

	out, err := decodeEntries(entries)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c2", out[1].ID)
	assert.Equal(t, sampleDoc(), out[1].Snapshot)
	assert.True(t, at.Equal(out[0].CreatedAt))

	entries[0].SnapshotJSON = "{"
	_, err = decodeEntries(entries)
	assert.Error(t, err)
}

// PB_TEST_MONGO_URI points at a disposable MongoDB server.
func TestMongoHistoryJournal_Live(t *testing.T) {
	uri := os.Getenv("PB_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PB_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	store, err := OpenMongo(ctx, uri, "pagebuilder_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.pages.Database().Drop(context.Background())
		_ = store.Close(context.Background())
	})
	j := store.HistoryJournal()

	undo, redo, err := j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	assert.Empty(t, undo)
	assert.Empty(t, redo)

	in := []editor.Commit{{ID: "c1", Label: editor.LabelAdd, Snapshot: sampleDoc()}}
	require.NoError(t, j.SaveHistory(ctx, "site", "home", in, in))
	undo, redo, err = j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	require.Len(t, undo, 1)
	require.Len(t, redo, 1)
	assert.Equal(t, sampleDoc(), undo[0].Snapshot)

	require.NoError(t, j.ClearPage(ctx, "site", "home"))
	undo, _, err = j.LoadHistory(ctx, "site", "home")
	require.NoError(t, err)
	assert.Empty(t, undo)
}
