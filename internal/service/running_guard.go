package service

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyRunning is returned when a migration already holds the same
// adapter pair.
var ErrAlreadyRunning = errors.New("a migration is already running on this connection pair")

// ─────────────────────────────────────────────────────────────
// runGuard — one migration per adapter pair
// ─────────────────────────────────────────────────────────────

// runGuard ensures only one migration at a time uses a given adapter
// pair, and lets shutdown wait for in-flight runs.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks key as busy. Returns false if it already is.
func (g *runGuard) TryLock(key string) bool {
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
func (g *runGuard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[key]; !ok {
		return
	}
	delete(g.running, key)
	g.wg.Done()
}

// Active lists the busy keys.
func (g *runGuard) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.running))
	for k := range g.running {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WaitAll blocks until every run completes or ctx is cancelled.
func (g *runGuard) WaitAll(ctx context.Context) {
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
