package engine

import (
	"sync"

	"github.com/linkflow/engine/internal/history/types"
)

// RunLocks serializes access to a single run's mutable state across
// concurrent RecordEvent/RespondWorkflowTaskCompleted/RespondActivityTask*
// calls, the way the coordinator's single-writer-per-run invariant requires.
// A striped map keeps contention local to the runs actually being written,
// instead of a single global mutex across every execution a shard owns.
type RunLocks struct {
	mu     sync.Mutex
	active map[types.ExecutionKey]*sync.Mutex
}

func NewRunLocks() *RunLocks {
	return &RunLocks{active: make(map[types.ExecutionKey]*sync.Mutex)}
}

// Lock acquires the per-run mutex for key, creating it on first use.
// Callers must call the returned unlock func exactly once.
func (l *RunLocks) Lock(key types.ExecutionKey) func() {
	l.mu.Lock()
	m, ok := l.active[key]
	if !ok {
		m = &sync.Mutex{}
		l.active[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget drops the per-run mutex once a run has closed and its mutable
// state has been evicted, so the stripe map doesn't grow without bound.
func (l *RunLocks) Forget(key types.ExecutionKey) {
	l.mu.Lock()
	delete(l.active, key)
	l.mu.Unlock()
}
