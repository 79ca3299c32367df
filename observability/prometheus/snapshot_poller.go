package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-dispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DispatcherSnapshotProvider provides current dispatcher stats snapshots.
type DispatcherSnapshotProvider interface {
	Stats() core.Stats
}

// QueueSnapshotProvider provides current queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// SnapshotPoller periodically exports dispatcher/queue Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	dispatchersMu sync.RWMutex
	dispatchers   map[string]DispatcherSnapshotProvider

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	workersActive  *prom.GaugeVec
	workersPooled  *prom.GaugeVec
	workersCreated *prom.GaugeVec
	waitingQueues  *prom.GaugeVec
	timersPending  *prom.GaugeVec
	outstanding    *prom.GaugeVec
	running        *prom.GaugeVec

	queuePending  *prom.GaugeVec
	queueDraining *prom.GaugeVec
	queueHandled  *prom.GaugeVec
	queueFailures *prom.GaugeVec

	stateMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	dispatcherGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "dispatch",
			Subsystem: "dispatcher",
			Name:      name,
			Help:      help,
		}, []string{"dispatcher"})
	}
	queueGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "dispatch",
			Subsystem: "queue",
			Name:      name,
			Help:      help,
		}, []string{"queue"})
	}

	p := &SnapshotPoller{
		interval:    interval,
		dispatchers: make(map[string]DispatcherSnapshotProvider),
		queues:      make(map[string]QueueSnapshotProvider),

		workersActive:  dispatcherGauge("workers_active", "Workers currently bound to a queue."),
		workersPooled:  dispatcherGauge("workers_pooled", "Idle workers parked in the pool."),
		workersCreated: dispatcherGauge("workers_created", "Workers started since the dispatcher was created."),
		waitingQueues:  dispatcherGauge("waiting_queues", "Queues waiting for a worker at the MaxWorkers ceiling."),
		timersPending:  dispatcherGauge("timers_pending", "Items scheduled in the timer table."),
		outstanding:    dispatcherGauge("outstanding_items", "Dequeued items not yet completed (CheckCompletion only)."),
		running:        dispatcherGauge("running", "Dispatcher running state (1=running, 0=stopping or stopped)."),

		queuePending:  queueGauge("pending", "Items waiting in the queue."),
		queueDraining: queueGauge("draining", "Queue drain state (1=a worker is bound, 0=idle)."),
		queueHandled:  queueGauge("handled_total", "Queue handled item count snapshot."),
		queueFailures: queueGauge("failures_total", "Queue handler failure count snapshot."),
	}

	for _, gauge := range []**prom.GaugeVec{
		&p.workersActive, &p.workersPooled, &p.workersCreated, &p.waitingQueues,
		&p.timersPending, &p.outstanding, &p.running,
		&p.queuePending, &p.queueDraining, &p.queueHandled, &p.queueFailures,
	} {
		registered, err := registerCollector(reg, *gauge)
		if err != nil {
			return nil, err
		}
		*gauge = registered
	}
	return p, nil
}

// AddDispatcher adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddDispatcher(name string, provider DispatcherSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "dispatcher")
	p.dispatchersMu.Lock()
	p.dispatchers[name] = provider
	p.dispatchersMu.Unlock()
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.started {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.started {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.started = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			p.CollectOnce()
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce refreshes every gauge from the registered providers.
func (p *SnapshotPoller) CollectOnce() {
	p.dispatchersMu.RLock()
	for name, provider := range p.dispatchers {
		stats := provider.Stats()
		p.workersActive.WithLabelValues(name).Set(float64(stats.Active))
		p.workersPooled.WithLabelValues(name).Set(float64(stats.Pooled))
		p.workersCreated.WithLabelValues(name).Set(float64(stats.WorkersCreated))
		p.waitingQueues.WithLabelValues(name).Set(float64(stats.WaitingQueues))
		p.timersPending.WithLabelValues(name).Set(float64(stats.Timers))
		p.outstanding.WithLabelValues(name).Set(float64(stats.Outstanding))
		p.running.WithLabelValues(name).Set(boolGauge(stats.State == core.StateRunning))
	}
	p.dispatchersMu.RUnlock()

	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		p.queuePending.WithLabelValues(name).Set(float64(stats.Pending))
		p.queueDraining.WithLabelValues(name).Set(boolGauge(stats.Draining))
		p.queueHandled.WithLabelValues(name).Set(float64(stats.Handled))
		p.queueFailures.WithLabelValues(name).Set(float64(stats.Failures))
	}
	p.queuesMu.RUnlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
