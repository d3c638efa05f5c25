// Package lock is the Position Lock Manager (spec.md §4.4): a process-local
// mutual-exclusion map keyed by (user_id, chain_id, target_contract), so two
// concurrent requests against the same position can't race each other
// through the Executor pipeline.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Key identifies the position a lock guards.
type Key struct {
	UserID   string
	ChainID  int64
	Contract string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s", k.UserID, k.ChainID, k.Contract)
}

// Handle is returned by Acquire and must be passed to Release exactly once.
type Handle struct {
	key Key
	sem chan struct{}
}

// Manager holds one binary semaphore per Key, created lazily and garbage
// collected once no goroutine references it anymore.
type Manager struct {
	mu      sync.Mutex
	entries map[Key]chan struct{}
	refs    map[Key]int
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{entries: make(map[Key]chan struct{}), refs: make(map[Key]int)}
}

// ErrTimeout is returned by Acquire when the lock isn't free within the
// requested timeout.
type ErrTimeout struct{ Key Key }

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("timed out acquiring position lock for %s", e.Key)
}

// Acquire blocks until the lock for key is free, ctx is cancelled, or
// timeout elapses, whichever comes first. A zero timeout waits forever
// (bounded only by ctx).
func (m *Manager) Acquire(ctx context.Context, key Key, timeout time.Duration) (*Handle, error) {
	sem := m.ref(key)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case sem <- struct{}{}:
		return &Handle{key: key, sem: sem}, nil
	case <-ctx.Done():
		m.unref(key)
		return nil, ctx.Err()
	case <-timeoutCh:
		m.unref(key)
		return nil, ErrTimeout{Key: key}
	}
}

// Release frees the lock h refers to. Safe to call exactly once per
// successful Acquire.
func (m *Manager) Release(h *Handle) {
	<-h.sem
	m.unref(h.key)
}

// ref returns the semaphore channel for key, creating it on first use, and
// bumps its reference count so it isn't garbage collected out from under
// a concurrent waiter.
func (m *Manager) ref(key Key) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.entries[key]
	if !ok {
		sem = make(chan struct{}, 1)
		m.entries[key] = sem
	}
	m.refs[key]++
	return sem
}

// unref drops the reference count for key, deleting its entry once no
// caller (waiting or holding) still refers to it.
func (m *Manager) unref(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[key]--
	if m.refs[key] <= 0 {
		delete(m.refs, key)
		delete(m.entries, key)
	}
}
