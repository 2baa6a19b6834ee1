// Package boardlock serializes structural mutations of a single board.
package boardlock

import (
	"context"
	"sync"
)

type Locker interface {
	Lock(ctx context.Context, boardID string) (func(), error)
}

// Local is an in-process lock per board id.
type Local struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]chan struct{})}
}

func (l *Local) boardLock(boardID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[boardID]
	if ok {
		return lock
	}
	lock = make(chan struct{}, 1)
	l.locks[boardID] = lock
	return lock
}

// Lock blocks until the board is free or ctx is done.
func (l *Local) Lock(ctx context.Context, boardID string) (func(), error) {
	lock := l.boardLock(boardID)
	select {
	case lock <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-lock }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
