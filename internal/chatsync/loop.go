package chatsync

import (
	"context"
	"errors"
	"sync"
)

var ErrStopped = errors.New("chatsync: engine stopped")

// Loop is the single cooperative event loop. Every task runs to completion
// before the next starts, so state owned by the loop needs no locking.
type Loop struct {
	tasks    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		tasks:   make(chan func(), 256),
		stopped: make(chan struct{}),
	}
}

// Post queues task. It blocks while the queue is full and returns false once
// the loop has stopped.
func (l *Loop) Post(task func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.stopped:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (l *Loop) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		fn()
		close(done)
	}

	select {
	case l.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}
