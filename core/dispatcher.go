package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher runs Queue handlers on a pool of worker goroutines and delivers
// timer-scheduled work items.
//
// Each Queue with pending items is drained by exactly one worker at a time.
// Enqueue never blocks: a queue without a worker either takes an idle one
// from the WorkerPool, starts a new one, or, when MaxWorkers is reached,
// waits in FIFO order for the next worker that finishes a drain.
//
// A control goroutine owns timer delivery and the shutdown sequence.
type Dispatcher struct {
	name    string
	cfg     DispatcherConfig
	logger  Logger
	metrics Metrics
	panics  PanicHandler

	// Worker bookkeeping.
	poolMu       sync.Mutex
	pool         WorkerPool
	actives      int
	maxActives   int
	waiting      []*Queue
	nextWorkerID int64

	// Timer table: items bucketed by the whole second they are due in.
	timerMu    sync.Mutex
	timers     map[int64][]*WorkItem
	timerCount int
	timer      *timer

	state   atomic.Int32
	signal  chan struct{}
	done    chan struct{}
	tracker *completionTracker

	ctx    context.Context
	cancel context.CancelFunc

	counters dispatcherCounters
}

// NewDispatcher creates a running Dispatcher. A nil cfg uses
// DefaultDispatcherConfig.
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	c := cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		name:    c.Name,
		cfg:     c,
		logger:  c.Logger,
		metrics: c.Metrics,
		panics:  c.PanicHandler,
		pool:    c.WorkerPool,
		timers:  make(map[int64][]*WorkItem),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	if c.CheckCompletion {
		d.tracker = newCompletionTracker()
	}
	d.state.Store(int32(StateRunning))

	go d.run()

	d.logger.Debug("dispatcher started",
		F("dispatcher", d.name),
		F("max_workers", c.MaxWorkers),
		F("check_completion", c.CheckCompletion))
	return d
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string {
	return d.name
}

// State returns the lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// IsRunning reports whether the dispatcher accepts work.
func (d *Dispatcher) IsRunning() bool {
	return d.State() == StateRunning
}

// Enqueue appends item to q and makes sure a worker will drain it.
//
// Once Stop has been called the item is completed with ErrPurged instead.
// Enqueueing an item from inside a handler hands it off to q; the current
// handler no longer owns it.
func (d *Dispatcher) Enqueue(q *Queue, item *WorkItem) {
	item.attachLogger(d.logger)
	if d.tracker != nil {
		item.strict.Store(true)
		d.tracker.handoff(item)
	}

	if d.State() != StateRunning {
		d.purge(item, "enqueue")
		return
	}

	q.bind(d)
	d.counters.enqueued.Add(1)
	q.pending.Push(item)

	if q.owner.Load() != nil {
		return
	}
	d.assign(q)
}

// assign binds a worker to q unless q already has one or is waiting.
func (d *Dispatcher) assign(q *Queue) {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()

	d.counters.gets.Add(1)
	if q.owner.Load() != nil || q.waiting || q.pending.IsEmpty() {
		d.counters.ungets.Add(1)
		return
	}

	if d.cfg.MaxWorkers > 0 && d.actives >= d.cfg.MaxWorkers {
		q.waiting = true
		d.waiting = append(d.waiting, q)
		d.logger.Debug("queue waiting for worker",
			F("dispatcher", d.name),
			F("queue", q.name),
			F("waiting", len(d.waiting)))
		return
	}

	w := d.pool.Get()
	if w != nil {
		d.counters.regets.Add(1)
	} else {
		w = d.spawnLocked()
	}

	d.actives++
	d.maxActives = max(d.maxActives, d.actives)
	d.bindLocked(w, q)
}

func (d *Dispatcher) spawnLocked() *Worker {
	d.nextWorkerID++
	w := newWorker(d, d.nextWorkerID)
	d.counters.created.Add(1)
	go w.run()
	return w
}

func (d *Dispatcher) bindLocked(w *Worker, q *Queue) {
	w.queue = q
	q.owner.Store(w)
	w.signal()
}

// release is called by a worker after a drain. It reports whether the worker
// should keep running.
func (d *Dispatcher) release(w *Worker) bool {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()

	d.counters.puts.Add(1)
	if q := w.queue; q != nil {
		q.owner.Store(nil)
		// An Enqueue that saw the owner before we cleared it skipped assign.
		if !q.pending.IsEmpty() {
			d.counters.unputs.Add(1)
			d.bindLocked(w, q)
			return true
		}
		w.queue = nil
	}

	if next := d.popWaitingLocked(); next != nil {
		d.bindLocked(w, next)
		return true
	}

	d.actives--
	if d.State() == StateRunning && d.pool.Put(w) {
		d.counters.reputs.Add(1)
		return true
	}
	d.counters.destroyed.Add(1)
	return false
}

func (d *Dispatcher) popWaitingLocked() *Queue {
	for len(d.waiting) > 0 {
		q := d.waiting[0]
		d.waiting[0] = nil
		d.waiting = d.waiting[1:]
		q.waiting = false
		if !q.pending.IsEmpty() {
			return q
		}
	}
	return nil
}

// drain processes q until it is empty.
func (d *Dispatcher) drain(w *Worker, q *Queue) {
	if n := q.activeDrains.Add(1); n > 1 {
		panic(fmt.Sprintf("dispatch: concurrent drain of queue %q detected (count=%d)", q.name, n))
	}
	defer q.activeDrains.Add(-1)

	d.counters.drains.Add(1)
	d.metrics.RecordQueueDepth(q.name, q.pending.Len())

	ctx := withDrainContext(d.ctx, q, w)
	for {
		item, ok := q.pending.Pop()
		if !ok {
			return
		}
		d.counters.dequeued.Add(1)
		d.process(ctx, w, q, item)
	}
}

func (d *Dispatcher) process(ctx context.Context, w *Worker, q *Queue, item *WorkItem) {
	if d.tracker != nil {
		d.tracker.add(item, q.name)
	}

	switch {
	case item.Function == FCChase:
		_ = item.Complete(nil)
		return
	case item.Function.IsBuiltin():
		d.logger.Warn("invalid function code",
			F("queue", q.name),
			F("item", item.ID),
			F("function", item.Function))
		_ = item.Complete(&InvalidFunctionError{Code: item.Function})
		return
	}

	start := time.Now()
	err := d.invoke(ctx, w, q, item)
	d.metrics.RecordWorkDuration(q.name, item.Function, time.Since(start))
	q.handled.Add(1)
	q.lastHandledAt.Store(time.Now().UnixNano())

	if err != nil {
		q.failures.Add(1)
		if !item.Completed() {
			_ = item.Complete(processingError(err))
		}
	}
}

// invoke calls the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, w *Worker, q *Queue, item *WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.HandlePanic(ctx, q.name, w.id, r, debug.Stack())
			d.metrics.RecordHandlerFailure(q.name, "panic")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	if err := q.handler.Handle(ctx, item); err != nil {
		d.logger.Warn("handler failed",
			F("queue", q.name),
			F("worker", w.id),
			F("item", item.ID),
			F("error", err))
		d.metrics.RecordHandlerFailure(q.name, "error")
		return err
	}
	return nil
}

// purge completes item with ErrPurged.
func (d *Dispatcher) purge(item *WorkItem, source string) {
	d.counters.purged.Add(1)
	d.metrics.RecordItemPurged(source)
	_ = item.Complete(ErrPurged)
}

// wake signals the control goroutine.
func (d *Dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// run is the control goroutine.
func (d *Dispatcher) run() {
	defer close(d.done)

	for range d.signal {
		if d.State() != StateRunning {
			break
		}
		d.deliverTimers()
	}
	d.terminate()
}

// Join blocks until the dispatcher has stopped.
func (d *Dispatcher) Join() {
	<-d.done
}

// Wait is Join bounded by ctx.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the dispatcher has stopped.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stats returns a snapshot of the dispatcher state.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Name:             d.name,
		State:            d.State(),
		WorkersCreated:   d.counters.created.Load(),
		WorkersDestroyed: d.counters.destroyed.Load(),
		Gets:             d.counters.gets.Load(),
		Regets:           d.counters.regets.Load(),
		Ungets:           d.counters.ungets.Load(),
		Puts:             d.counters.puts.Load(),
		Reputs:           d.counters.reputs.Load(),
		Unputs:           d.counters.unputs.Load(),
		Enqueued:         d.counters.enqueued.Load(),
		Dequeued:         d.counters.dequeued.Load(),
		Drains:           d.counters.drains.Load(),
		Purged:           d.counters.purged.Load(),
	}

	d.poolMu.Lock()
	s.Active = d.actives
	s.MaxActive = d.maxActives
	s.Pooled = d.pool.Len()
	s.MaxPooled = d.pool.HighWater()
	s.WaitingQueues = len(d.waiting)
	d.poolMu.Unlock()

	d.timerMu.Lock()
	s.Timers = d.timerCount
	s.TimerArmed = d.timer != nil
	d.timerMu.Unlock()

	if d.tracker != nil {
		s.Outstanding = d.tracker.len()
	}
	return s
}

// Outstanding returns the dequeued items that have not completed, oldest
// first. It is always empty unless CheckCompletion is set.
func (d *Dispatcher) Outstanding() []OutstandingItem {
	if d.tracker == nil {
		return nil
	}
	return d.tracker.snapshot()
}

func (d *Dispatcher) activeWorkers() int {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()
	return d.actives
}
