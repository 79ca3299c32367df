package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestWorkItem_CompleteOnce verifies exactly-once completion
// Given: a work item with a counting target
// When: Complete is called from 16 goroutines at once
// Then: exactly one call succeeds, the others get ErrAlreadyCompleted, and the target fires once
func TestWorkItem_CompleteOnce(t *testing.T) {
	// Arrange
	var notified atomic.Int32
	item := NewWorkItem(CompletionFunc(func(*WorkItem) { notified.Add(1) }), FCNone)
	item.attachLogger(NewNoOpLogger())

	// Act
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := item.Complete(nil); {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyCompleted):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	// Assert
	if ok.Load() != 1 || dup.Load() != 15 {
		t.Errorf("Complete results: ok = %d, dup = %d, want 1 and 15", ok.Load(), dup.Load())
	}
	if notified.Load() != 1 {
		t.Errorf("target calls: got = %d, want = 1", notified.Load())
	}
}

// TestWorkItem_SecondCompleteKeepsCode verifies a late completion cannot overwrite the code
func TestWorkItem_SecondCompleteKeepsCode(t *testing.T) {
	item := NewWorkItem(nil, FCNone)
	item.attachLogger(NewNoOpLogger())

	_ = item.Complete(ErrPurged)
	_ = item.Complete(nil)

	if !errors.Is(item.Err(), ErrPurged) {
		t.Errorf("Err(): got = %v, want ErrPurged", item.Err())
	}
}

// TestWorkItem_Code verifies Code distinguishes pending from successful items
func TestWorkItem_Code(t *testing.T) {
	item := NewWorkItem(nil, FCNone)

	if code, done := item.Code(); done || code != nil {
		t.Errorf("pending Code(): got = (%v, %v), want (nil, false)", code, done)
	}

	_ = item.Complete(nil)

	if code, done := item.Code(); !done || code != nil {
		t.Errorf("completed Code(): got = (%v, %v), want (nil, true)", code, done)
	}
}

// TestWorkItem_SetCodeFinish verifies staged codes
// Given: a pending item
// When: SetCode stages an error and Finish is called
// Then: the staged error is the completion code
func TestWorkItem_SetCodeFinish(t *testing.T) {
	// Arrange
	item := NewWorkItem(nil, FCNone)
	staged := errors.New("partial")

	// Act
	if item.Err() != nil || item.Completed() {
		t.Fatal("new item reports a completion")
	}
	item.SetCode(staged)
	if err := item.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// Assert
	if !errors.Is(item.Err(), staged) {
		t.Errorf("Err(): got = %v, want = %v", item.Err(), staged)
	}
	item.SetCode(nil)
	if !errors.Is(item.Err(), staged) {
		t.Error("SetCode after completion changed the code")
	}
}

// TestWorkItem_TargetPanicRecovered verifies a panicking target does not escape Complete
func TestWorkItem_TargetPanicRecovered(t *testing.T) {
	item := NewWorkItem(CompletionFunc(func(*WorkItem) { panic("target") }), FCNone)
	item.attachLogger(NewNoOpLogger())

	if err := item.Complete(nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !item.Completed() {
		t.Error("item not completed after target panic")
	}
}

// TestWorkItem_NopTarget verifies NopTarget and a nil target behave the same
func TestWorkItem_NopTarget(t *testing.T) {
	for _, target := range []CompletionTarget{nil, NopTarget{}} {
		item := NewPayloadItem("p", target)
		if err := item.Complete(nil); err != nil {
			t.Errorf("Complete with %T: %v", target, err)
		}
	}
}

// TestWaitTarget_Reuse verifies a WaitTarget serves sequential items
// Given: one WaitTarget
// When: three items using it complete one after the other
// Then: each Wait returns once and the event is clear afterwards
func TestWaitTarget_Reuse(t *testing.T) {
	// Arrange
	var target WaitTarget

	for i := range 3 {
		// Act
		item := NewPayloadItem(i, &target)
		go func() { _ = item.Complete(nil) }()
		target.Wait()

		// Assert
		if target.IsSet() {
			t.Errorf("round %d: event still set after Wait", i)
		}
	}
}

// TestWaitTarget_WaitContext verifies cancellation leaves the event untouched
func TestWaitTarget_WaitContext(t *testing.T) {
	target := NewWaitTarget()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := target.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitContext: got = %v, want DeadlineExceeded", err)
	}

	target.OnComplete(nil)
	target.OnComplete(nil)
	if !target.IsSet() {
		t.Fatal("IsSet() = false after OnComplete")
	}
	if err := target.WaitContext(context.Background()); err != nil {
		t.Errorf("WaitContext after set: %v", err)
	}
	if target.IsSet() {
		t.Error("a binary event absorbed two sets")
	}
}

// TestCompletionTracker_Handoff verifies forwarding clears tracking
func TestCompletionTracker_Handoff(t *testing.T) {
	tr := newCompletionTracker()
	item := NewWorkItem(nil, FCNone)

	tr.add(item, "a")
	if tr.len() != 1 {
		t.Fatalf("len after add: got = %d, want = 1", tr.len())
	}
	tr.handoff(item)
	if tr.len() != 0 {
		t.Errorf("len after handoff: got = %d, want = 0", tr.len())
	}
	if item.tracker.Load() != nil {
		t.Error("item still points at the tracker after handoff")
	}

	tr.add(item, "b")
	_ = item.Complete(nil)
	if tr.len() != 0 {
		t.Errorf("len after complete: got = %d, want = 0", tr.len())
	}
}
