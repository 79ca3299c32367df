package core

import (
	"context"
	"sync"
)

// CompletionTarget is notified exactly once when a WorkItem completes.
//
// OnComplete runs on whichever goroutine called Complete, usually a worker.
// It must not block for long. Panics are recovered and logged by Complete.
type CompletionTarget interface {
	OnComplete(item *WorkItem)
}

// NopTarget does nothing. Attaching it has the same effect as attaching no
// target at all.
type NopTarget struct{}

// OnComplete is a no-op.
func (NopTarget) OnComplete(*WorkItem) {}

// CompletionFunc adapts a function to the CompletionTarget interface.
type CompletionFunc func(item *WorkItem)

// OnComplete calls f(item).
func (f CompletionFunc) OnComplete(item *WorkItem) {
	f(item)
}

// WaitTarget lets a producer block until an item completes.
//
// It holds a binary event: OnComplete sets it, Wait blocks until it is set
// and then clears it. A WaitTarget may be reused for sequential operations,
// but never for two outstanding items at once.
//
// Do not Wait from inside a handler for an item queued behind it on the same
// queue; the worker would wait on itself.
type WaitTarget struct {
	once sync.Once
	ch   chan struct{}
}

// NewWaitTarget returns a ready-to-use WaitTarget. The zero value is usable too.
func NewWaitTarget() *WaitTarget {
	t := &WaitTarget{}
	t.init()
	return t
}

func (t *WaitTarget) init() {
	t.once.Do(func() {
		t.ch = make(chan struct{}, 1)
	})
}

// OnComplete sets the event.
func (t *WaitTarget) OnComplete(*WorkItem) {
	t.init()
	select {
	case t.ch <- struct{}{}:
	default:
		// Already set
	}
}

// Wait blocks until the event is set, then clears it.
func (t *WaitTarget) Wait() {
	t.init()
	<-t.ch
}

// WaitContext is Wait with cancellation. The event is left untouched when ctx
// ends first.
func (t *WaitTarget) WaitContext(ctx context.Context) error {
	t.init()
	select {
	case <-t.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSet reports whether the event is currently set, without clearing it.
func (t *WaitTarget) IsSet() bool {
	t.init()
	return len(t.ch) > 0
}
