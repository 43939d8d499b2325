package kafka

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentTasks is the gate capacity used when none is configured
const DefaultMaxConcurrentTasks = 50

// A ConcurrencyGate bounds how many processing operations run at the same time
type ConcurrencyGate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// NewConcurrencyGate creates a gate with the given number of slots
func NewConcurrencyGate(capacity int) (*ConcurrencyGate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("expected positive number for gate capacity, got: %d", capacity)
	}
	return &ConcurrencyGate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}, nil
}

// Acquire blocks until a slot is free or ctx is done
func (g *ConcurrencyGate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	return nil
}

// Release returns a slot taken by Acquire
func (g *ConcurrencyGate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Capacity returns the number of slots
func (g *ConcurrencyGate) Capacity() int {
	return g.capacity
}

// InFlight returns how many slots are currently taken
func (g *ConcurrencyGate) InFlight() int {
	return int(g.inFlight.Load())
}
