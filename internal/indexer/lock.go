package indexer

import (
	"errors"
	"sync/atomic"
)

// ErrIndexingInProgress is returned when another indexing run holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// IndexLock lets one indexing run proceed and rejects concurrent ones
// instead of queueing them.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Locked reports whether an indexing run currently holds the lock
func (l *IndexLock) Locked() bool {
	return l.state.Load() == 1
}

// Run calls fn while holding the lock, or returns ErrIndexingInProgress
// without calling it.
func (l *IndexLock) Run(fn func() error) error {
	if !l.TryAcquire() {
		return ErrIndexingInProgress
	}
	defer l.Release()
	return fn()
}
