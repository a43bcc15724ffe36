package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/service"
)

// ─────────────────────────────────────────────────────────────
// pageGuard, emitters and static collaborators
// ─────────────────────────────────────────────────────────────

func TestPageGuard_TryLock(t *testing.T) {
	var g service.ExportedPageGuard

	require.True(t, g.TryLock("site/a"))
	assert.False(t, g.TryLock("site/a"), "same page is busy")
	require.True(t, g.TryLock("site/b"))
	g.Unlock("site/a")
	g.Unlock("site/b")

	require.True(t, g.TryLock("site/a"), "free again after unlock")
	g.Unlock("site/a")
}

func TestPageGuard_WaitAll(t *testing.T) {
	var g service.ExportedPageGuard
	require.True(t, g.TryLock("site/a"))

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()
	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("site/a")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAll timed out")
	}
}

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	m.Emit(context.Background(), service.EventSaved, map[string]any{"pageId": "p"})
	m.Emit(context.Background(), service.EventClosed, nil)

	assert.Equal(t, []string{service.EventSaved, service.EventClosed}, m.Names())
	assert.Equal(t, map[string]any{"pageId": "p"}, m.Events[0].Data)
}

func TestLogEmitter_NilLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		service.LogEmitter{}.Emit(context.Background(), service.EventSaved, nil)
	})
}

func TestStaticCollaborators(t *testing.T) {
	ctx := context.Background()

	set, err := service.StaticModules{}.EnabledModules(ctx, "site")
	require.NoError(t, err)
	assert.Empty(t, set)

	ok, err := service.StaticPermissions{ReadOnly: true}.Allowed(ctx, "s", "p", domain.ActionEdit)
	require.NoError(t, err)
	assert.False(t, ok)

	tok, err := service.StaticToken("abc").Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
