// Package cancellation defines the cancellation-handle collaborator
// interface consumed by the Executor (§6) and a small context.Context-backed
// reference implementation for callers that don't supply their own.
package cancellation

import (
	"context"
	"sync"
)

// Handle is the consumed cancellation interface: IsCancelled is polled by
// the Executor between work items and checked by workers before each
// provider call; OnCancel registers a callback for deterministic teardown.
// Cancellation is idempotent.
type Handle interface {
	IsCancelled() bool
	OnCancel(func())
}

// Token is a context.Context-backed reference Handle implementation.
type Token struct {
	mu        sync.Mutex
	ctx       context.Context
	callbacks []func()
	fired     bool
}

// NewToken builds a Token bound to ctx: IsCancelled reports ctx.Err() != nil,
// and registered callbacks run (at most once each) the first time either
// IsCancelled observes cancellation or ctx.Done() fires, whichever comes
// first.
func NewToken(ctx context.Context) *Token {
	t := &Token{ctx: ctx}

	go t.watch()

	return t
}

func (t *Token) watch() {
	<-t.ctx.Done()
	t.fire()
}

func (t *Token) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired {
		return
	}

	t.fired = true

	for _, cb := range t.callbacks {
		cb()
	}
}

// IsCancelled reports whether the underlying context has been cancelled.
func (t *Token) IsCancelled() bool {
	select {
	case <-t.ctx.Done():
		t.fire()

		return true
	default:
		return false
	}
}

// OnCancel registers cb to run once, the first time cancellation is
// observed. If cancellation has already fired, cb runs immediately.
func (t *Token) OnCancel(cb func()) {
	t.mu.Lock()

	if t.fired {
		t.mu.Unlock()
		cb()

		return
	}

	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}
