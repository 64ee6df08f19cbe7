package indexer

import "sync/atomic"

// IndexLock guards a bank-wide operation. Index runs and re-clean passes on
// the same Indexer share one lock so they never interleave writes.
type IndexLock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

// TryAcquire takes the lock without blocking and reports whether it succeeded
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether an operation currently holds the lock
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
