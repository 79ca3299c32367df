package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-dispatch/core"
)

// newTestDispatcher creates a quiet dispatcher stopped at test cleanup.
func newTestDispatcher(t *testing.T, cfg *core.DispatcherConfig) *core.Dispatcher {
	t.Helper()
	if cfg == nil {
		cfg = &core.DispatcherConfig{}
	}
	if cfg.Name == "" {
		cfg.Name = t.Name()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewNoOpLogger()
	}
	d := core.NewDispatcher(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return d
}

// completionRecorder collects completed items in completion order.
type completionRecorder struct {
	done chan *core.WorkItem
}

func newCompletionRecorder(size int) *completionRecorder {
	return &completionRecorder{done: make(chan *core.WorkItem, size)}
}

func (r *completionRecorder) OnComplete(item *core.WorkItem) {
	r.done <- item
}

// next waits for the next completion or fails the test.
func (r *completionRecorder) next(t *testing.T, timeout time.Duration) *core.WorkItem {
	t.Helper()
	select {
	case item := <-r.done:
		return item
	case <-time.After(timeout):
		t.Fatalf("no completion within %v", timeout)
		return nil
	}
}

// none asserts that nothing completes within d.
func (r *completionRecorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case item := <-r.done:
		t.Fatalf("unexpected completion of %v (err=%v)", item.Payload, item.Err())
	case <-time.After(d):
	}
}

// waitFor polls cond until it holds or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}
