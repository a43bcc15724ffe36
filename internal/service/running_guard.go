package service

import (
	"context"
	"sync"
)

// ExportedPageGuard is an exported alias so _test packages can test the guard.
type ExportedPageGuard = pageGuard

// ─────────────────────────────────────────────────────────────
// pageGuard: one explicit save or publish per page at a time
// ─────────────────────────────────────────────────────────────

type pageGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks key as busy. It returns false if key is already busy.
func (g *pageGuard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[key]; ok {
		return false
	}
	g.running[key] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases key. Must follow a successful TryLock.
func (g *pageGuard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
	g.wg.Done()
}

// WaitAll blocks until every busy key is released or ctx is done.
func (g *pageGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
