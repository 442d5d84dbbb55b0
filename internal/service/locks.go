package service

import (
	"context"
	"sync"
)

// templateLocks serializes work per template id. Each key owns a one-token
// channel so waiting respects context cancellation.
type templateLocks struct {
	mu    sync.Mutex
	locks map[uint]chan struct{}
}

func newTemplateLocks() *templateLocks {
	return &templateLocks{locks: make(map[uint]chan struct{})}
}

func (l *templateLocks) get(id uint) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		l.locks[id] = ch
	}
	return ch
}

// acquire blocks until the template is free or ctx is done. The returned
// func releases the lock.
func (l *templateLocks) acquire(ctx context.Context, id uint) (func(), error) {
	ch := l.get(id)
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
