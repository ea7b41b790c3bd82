package callee

import (
	"context"
	"sync"
)

// gate is a mutual-exclusion primitive whose acquire can be interrupted
// through a context. Waiters are served in arrival order: release hands the
// gate directly to the oldest waiter so newcomers cannot overtake it.
type gate struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (g *gate) acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.held {
		g.held = true
		g.mu.Unlock()
		return nil
	}
	if err := ctx.Err(); err != nil {
		g.mu.Unlock()
		return err
	}
	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	select {
	case <-ready:
		// Handed over while we were giving up; pass it on.
		g.releaseLocked()
	default:
		g.removeWaiterLocked(ready)
	}
	g.mu.Unlock()
	return ctx.Err()
}

func (g *gate) release() {
	g.mu.Lock()
	g.releaseLocked()
	g.mu.Unlock()
}

func (g *gate) releaseLocked() {
	if len(g.waiters) == 0 {
		g.held = false
		return
	}
	next := g.waiters[0]
	g.waiters[0] = nil
	g.waiters = g.waiters[1:]
	close(next)
}

func (g *gate) removeWaiterLocked(ready chan struct{}) {
	for i, w := range g.waiters {
		if w == ready {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}

func (g *gate) isHeld() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

func (g *gate) waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
