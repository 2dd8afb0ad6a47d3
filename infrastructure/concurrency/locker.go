package concurrency

import (
	"context"
	"sync"
)

// KeyedLocker serializes writers per workspace inside one process. Each
// workspace gets its own mutex so writes to unrelated workspaces never
// contend; acquisition respects context cancellation.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*workspaceLock
}

type workspaceLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an in-process workspace locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*workspaceLock)}
}

// Acquire blocks until the workspace lock is held or ctx ends. The returned
// release function must be called exactly once.
func (l *KeyedLocker) Acquire(ctx context.Context, workspaceID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[workspaceID]
	if !ok {
		lock = &workspaceLock{ch: make(chan struct{}, 1)}
		l.locks[workspaceID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return func() {
			<-lock.ch
			l.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(l.locks, workspaceID)
			}
			l.mu.Unlock()
		}, nil
	case <-ctx.Done():
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, workspaceID)
		}
		l.mu.Unlock()
		return nil, ctx.Err()
	}
}
