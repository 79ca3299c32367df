package core

// WorkerPool decides what happens to a worker that has nothing left to drain.
//
// All methods are called with the dispatcher's pool lock held, so
// implementations need no locking of their own and must not block.
type WorkerPool interface {
	// Get returns an idle worker, or nil if a new one must be started.
	Get() *Worker

	// Put offers a finished worker for reuse. Returning false makes the
	// worker exit.
	Put(w *Worker) bool

	// Drain removes and returns every idle worker.
	Drain() []*Worker

	// Len returns the number of idle workers.
	Len() int

	// HighWater returns the largest Len ever observed.
	HighWater() int
}

// BoundedWorkerPool keeps up to Cap idle workers for reuse.
type BoundedWorkerPool struct {
	cap     int
	idle    []*Worker
	maxSeen int
}

// NewBoundedWorkerPool returns a pool holding at most capacity idle workers.
// A capacity below 1 behaves like SpawnWorkerPool.
func NewBoundedWorkerPool(capacity int) *BoundedWorkerPool {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedWorkerPool{
		cap:  capacity,
		idle: make([]*Worker, 0, min(capacity, 64)),
	}
}

// Cap returns the idle ceiling.
func (p *BoundedWorkerPool) Cap() int {
	return p.cap
}

func (p *BoundedWorkerPool) Get() *Worker {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	w := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	return w
}

func (p *BoundedWorkerPool) Put(w *Worker) bool {
	if len(p.idle) >= p.cap {
		return false
	}
	p.idle = append(p.idle, w)
	p.maxSeen = max(p.maxSeen, len(p.idle))
	return true
}

func (p *BoundedWorkerPool) Drain() []*Worker {
	out := p.idle
	p.idle = nil
	return out
}

func (p *BoundedWorkerPool) Len() int {
	return len(p.idle)
}

func (p *BoundedWorkerPool) HighWater() int {
	return p.maxSeen
}

// SpawnWorkerPool never reuses workers: every assignment starts a new
// goroutine and every finished worker exits. Handy in tests.
type SpawnWorkerPool struct{}

func (SpawnWorkerPool) Get() *Worker     { return nil }
func (SpawnWorkerPool) Put(*Worker) bool { return false }
func (SpawnWorkerPool) Drain() []*Worker { return nil }
func (SpawnWorkerPool) Len() int         { return 0 }
func (SpawnWorkerPool) HighWater() int   { return 0 }
