// Package dispatch runs many independent work queues on a small, reusable
// pool of goroutines.
//
// Producers submit WorkItems to Queues. Each Queue has a Handler and is drained
// by at most one worker at a time, so a handler never runs concurrently with
// itself and needs no locks for state it owns. Different queues drain in
// parallel. When an item is done its CompletionTarget is notified exactly once.
//
// # Quick Start
//
// Initialize the global dispatcher at application startup:
//
//	dispatch.InitGlobalDispatcher(nil)
//	defer dispatch.ShutdownGlobalDispatcher()
//
// Create a queue and submit work:
//
//	q := dispatch.CreateQueue("parse", dispatch.HandlerFunc(func(ctx context.Context, item *dispatch.WorkItem) error {
//		// item.Payload is yours until you complete or forward it
//		return item.Complete(nil)
//	}))
//
//	wait := dispatch.NewWaitTarget()
//	q.Submit(dispatch.NewPayloadItem("hello", wait))
//	wait.Wait()
//
// # Key Concepts
//
// WorkItem: the unit of work. It carries an opaque Payload, an optional
// FunctionCode and a CompletionTarget. Complete records the final code
// (nil for success) and notifies the target; a second Complete returns
// ErrAlreadyCompleted.
//
// Queue: an ordered inbox with a Handler. A handler finishes an item either
// by completing it or by submitting it to another queue, which makes simple
// pipelines out of single-purpose queues.
//
// Dispatcher: the runtime. It binds workers to queues that have work, parks
// idle workers in a WorkerPool for reuse, and delivers timer-scheduled items.
//
// Timers: AddTimer completes an item after a delay; DelTimer cancels it.
// Exactly one of the two takes effect.
//
// # Shutdown
//
// Stop purges pending timers with ErrPurged, lets queues finish the items they
// already accepted, and waits for active workers with exponential backoff.
// Items submitted after Stop complete with ErrPurged. Join blocks until the
// sequence is over.
package dispatch
