package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is the counting admission control bounding how many workflow
// executions may run at once. Acquire blocks the caller until a slot is
// free; Release always succeeds and frees one slot. Releasing more slots
// than were acquired corrupts the gate and panics, since that indicates a
// core-integrity bug rather than a collaborator failure.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inflight atomic.Int64
}

// NewGate creates a gate admitting at most max concurrent holders. A
// non-positive max is normalized to 1: a zero-capacity gate would never
// admit work.
func NewGate(max int) *Gate {
	if max < 1 {
		max = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(max)), capacity: int64(max)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire workflow slot: %w", err)
	}
	g.inflight.Add(1)
	return nil
}

// TryAcquire claims a slot without blocking and reports whether it succeeded.
func (g *Gate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.inflight.Add(1)
	return true
}

// Release frees one previously acquired slot.
func (g *Gate) Release() {
	g.inflight.Add(-1)
	g.sem.Release(1)
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int64 { return g.inflight.Load() }

// Capacity returns the configured maximum number of concurrent holders.
func (g *Gate) Capacity() int64 { return g.capacity }
