package core

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	itemPending int32 = iota
	itemCompleting
	itemCompleted
)

// WorkItem is a unit of work submitted to a Queue.
//
// A WorkItem is owned by its producer until it is submitted, then by the
// handler currently processing it, and returns to the producer once
// Complete has been called.
type WorkItem struct {
	// ID identifies the item in logs.
	ID uuid.UUID

	// Payload is interpreted only by handlers.
	Payload any

	// Function is an optional discriminator. Negative values are built-ins.
	Function FunctionCode

	// Target is notified once on completion. Nil is the same as NopTarget.
	Target CompletionTarget

	state atomic.Int32
	code  error

	// Unix nanoseconds of the timer delivery time, 0 if never scheduled.
	scheduledAt atomic.Int64

	// Timer table bookkeeping, guarded by Dispatcher.timerMu.
	when     time.Time
	timerSec int64
	inTimers bool

	logger  atomic.Pointer[loggerRef]
	tracker atomic.Pointer[completionTracker]
	strict  atomic.Bool
}

type loggerRef struct {
	Logger
}

// NewWorkItem creates a WorkItem with an optional completion target and
// function code.
func NewWorkItem(target CompletionTarget, fc FunctionCode) *WorkItem {
	return &WorkItem{
		ID:       uuid.New(),
		Function: fc,
		Target:   target,
	}
}

// NewPayloadItem is NewWorkItem with a payload and no function code.
func NewPayloadItem(payload any, target CompletionTarget) *WorkItem {
	item := NewWorkItem(target, FCNone)
	item.Payload = payload
	return item
}

// SetCode stages a completion code that Finish will keep. It has no effect
// once the item has completed.
func (w *WorkItem) SetCode(code error) {
	if w.state.Load() != itemPending {
		return
	}
	w.code = code
}

// Complete stores code as the final completion code (nil means success) and
// notifies the completion target.
//
// Completion happens exactly once. Later calls return ErrAlreadyCompleted
// and never reach the target.
func (w *WorkItem) Complete(code error) error {
	return w.complete(code, true)
}

// Finish completes the item keeping the code staged with SetCode, if any.
func (w *WorkItem) Finish() error {
	return w.complete(nil, false)
}

func (w *WorkItem) complete(code error, set bool) error {
	if !w.state.CompareAndSwap(itemPending, itemCompleting) {
		fields := []Field{F("item", w.ID), F("function", w.Function)}
		if w.strict.Load() {
			fields = append(fields, F("stack", string(debug.Stack())))
		}
		w.log().Warn("work item completed more than once", fields...)
		return ErrAlreadyCompleted
	}
	if set {
		w.code = code
	}
	if t := w.tracker.Swap(nil); t != nil {
		t.remove(w)
	}
	w.state.Store(itemCompleted)

	w.notify()
	return nil
}

func (w *WorkItem) notify() {
	target := w.Target
	if target == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.log().Error("completion target panicked",
				F("item", w.ID),
				F("panic", r),
				F("stack", string(debug.Stack())))
		}
	}()
	target.OnComplete(w)
}

// Completed reports whether Complete or Finish has run.
func (w *WorkItem) Completed() bool {
	return w.state.Load() == itemCompleted
}

// Err returns the completion code. It is nil while the item is pending and
// when it completed successfully; use Completed to tell the two apart.
func (w *WorkItem) Err() error {
	if w.state.Load() != itemCompleted {
		return nil
	}
	return w.code
}

// Code returns the completion code and whether the item has completed.
func (w *WorkItem) Code() (error, bool) {
	if w.state.Load() != itemCompleted {
		return nil, false
	}
	return w.code, true
}

// ScheduledAt returns the delivery time set by the timer path, or the zero
// time if the item was never scheduled.
func (w *WorkItem) ScheduledAt() time.Time {
	ns := w.scheduledAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (w *WorkItem) attachLogger(l Logger) {
	if l == nil {
		return
	}
	w.logger.CompareAndSwap(nil, &loggerRef{l})
}

func (w *WorkItem) log() Logger {
	if ref := w.logger.Load(); ref != nil {
		return ref.Logger
	}
	return defaultLogger()
}
