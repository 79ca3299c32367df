package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handler processes one WorkItem at a time for a Queue.
//
// Handle must eventually complete the item, either by calling Complete (or
// Finish) or by enqueueing it to another Queue whose handler will. The
// dispatcher does not complete items a handler silently drops; turn on
// DispatcherConfig.CheckCompletion to have those reported.
//
// A panic or a non-nil error force-completes the item with an error wrapping
// ErrProcessing. Handle is never called concurrently for the same Queue, but
// successive calls may run on different goroutines.
type Handler interface {
	Handle(ctx context.Context, item *WorkItem) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, item *WorkItem) error

// Handle calls f(ctx, item).
func (f HandlerFunc) Handle(ctx context.Context, item *WorkItem) error {
	return f(ctx, item)
}

// DefaultHandler completes every item immediately with no error.
var DefaultHandler Handler = HandlerFunc(func(ctx context.Context, item *WorkItem) error {
	_ = item.Complete(nil)
	return nil
})

// Queue is an ordered inbox of work items processed one at a time by its
// Handler. Different queues are processed in parallel.
type Queue struct {
	id      uuid.UUID
	name    string
	handler Handler

	dispatcher atomic.Pointer[Dispatcher]
	pending    *pendingList

	// owner is the worker draining the queue. Written only with the
	// dispatcher pool lock held; read without it on the Enqueue fast path.
	owner atomic.Pointer[Worker]

	// waiting is set while the queue is parked for a worker. Guarded by
	// the dispatcher pool lock.
	waiting bool

	activeDrains  atomic.Int32 // concurrency assertion
	handled       atomic.Int64
	failures      atomic.Int64
	lastHandledAt atomic.Int64
}

// NewQueue creates a Queue. A nil handler uses DefaultHandler.
//
// d may be nil, in which case the queue is bound to the first dispatcher it
// is enqueued to. A queue can only ever be served by one dispatcher.
func NewQueue(d *Dispatcher, name string, h Handler) *Queue {
	if h == nil {
		h = DefaultHandler
	}
	q := &Queue{
		id:      uuid.New(),
		name:    name,
		handler: h,
		pending: newPendingList(),
	}
	if q.name == "" {
		q.name = "queue-" + q.id.String()[:8]
	}
	if d != nil {
		q.dispatcher.Store(d)
	}
	return q
}

// Submit enqueues item on the queue's dispatcher.
func (q *Queue) Submit(item *WorkItem) {
	d := q.dispatcher.Load()
	if d == nil {
		panic(fmt.Sprintf("dispatch: queue %q has no dispatcher, use Dispatcher.Enqueue", q.name))
	}
	d.Enqueue(q, item)
}

func (q *Queue) bind(d *Dispatcher) {
	if q.dispatcher.CompareAndSwap(nil, d) {
		return
	}
	if q.dispatcher.Load() != d {
		panic(fmt.Sprintf("dispatch: queue %q belongs to another dispatcher", q.name))
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// ID returns the queue identifier.
func (q *Queue) ID() uuid.UUID {
	return q.id
}

// Dispatcher returns the dispatcher serving the queue, or nil if it has not
// been bound yet.
func (q *Queue) Dispatcher() *Dispatcher {
	return q.dispatcher.Load()
}

// Len returns the number of items waiting to be handled. The item currently
// being handled is not counted.
func (q *Queue) Len() int {
	return q.pending.Len()
}

// IsBusy reports whether items are waiting.
func (q *Queue) IsBusy() bool {
	return q.pending.Len() > 0
}

// IsIdle reports whether no items are waiting.
func (q *Queue) IsIdle() bool {
	return q.pending.IsEmpty()
}

// Stats returns a snapshot of the queue state.
func (q *Queue) Stats() QueueStats {
	stats := QueueStats{
		Name:     q.name,
		ID:       q.id.String(),
		Pending:  q.pending.Len(),
		Draining: q.owner.Load() != nil,
		Handled:  q.handled.Load(),
		Failures: q.failures.Load(),
	}
	if ns := q.lastHandledAt.Load(); ns != 0 {
		stats.LastHandledAt = time.Unix(0, ns)
	}
	return stats
}

func (q *Queue) String() string {
	return fmt.Sprintf("Queue(%s)", q.name)
}

// =============================================================================
// Context Helper
// =============================================================================

type queueKeyType struct{}
type workerKeyType struct{}

var (
	queueKey  queueKeyType
	workerKey workerKeyType
)

func withDrainContext(ctx context.Context, q *Queue, w *Worker) context.Context {
	ctx = context.WithValue(ctx, queueKey, q)
	return context.WithValue(ctx, workerKey, w.id)
}

// CurrentQueue returns the Queue whose handler is running with ctx.
func CurrentQueue(ctx context.Context) *Queue {
	if v := ctx.Value(queueKey); v != nil {
		return v.(*Queue)
	}
	return nil
}

// CurrentWorkerID returns the id of the worker running the handler.
func CurrentWorkerID(ctx context.Context) (int64, bool) {
	if v := ctx.Value(workerKey); v != nil {
		return v.(int64), true
	}
	return 0, false
}
