package core

import "fmt"

// Worker is a goroutine that drains one Queue at a time on behalf of a
// Dispatcher. Workers are created on demand, parked in the WorkerPool when
// idle, and exit when the pool refuses them or the dispatcher stops.
type Worker struct {
	id   int64
	d    *Dispatcher
	wake chan struct{}

	// Guarded by d.poolMu.
	queue *Queue
}

func newWorker(d *Dispatcher, id int64) *Worker {
	return &Worker{
		id:   id,
		d:    d,
		wake: make(chan struct{}, 1),
	}
}

// ID returns the worker id, unique within its dispatcher.
func (w *Worker) ID() int64 {
	return w.id
}

func (w *Worker) String() string {
	return fmt.Sprintf("Worker(%d)", w.id)
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run is the worker main loop: wait to be bound, drain, hand itself back.
func (w *Worker) run() {
	d := w.d
	for {
		<-w.wake

		d.poolMu.Lock()
		q := w.queue
		d.poolMu.Unlock()

		if q != nil {
			d.drain(w, q)
		}

		if !d.release(w) {
			return
		}
	}
}
