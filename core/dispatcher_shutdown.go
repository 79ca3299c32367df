package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var errWorkersActive = errors.New("workers still active")

// Stop begins an orderly shutdown and returns immediately; use Join or Wait
// to block until it finishes. Calling Stop more than once has no effect.
//
// After Stop, Enqueue and AddTimer complete their items with ErrPurged.
// Pending timer items are purged, items already accepted by queues are
// still handled, idle workers exit, and the dispatcher waits for active
// workers under the configured ShutdownPolicy.
func (d *Dispatcher) Stop() {
	d.timerMu.Lock()
	stopped := d.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	d.timerMu.Unlock()

	if stopped {
		d.logger.Info("stopping dispatcher", F("dispatcher", d.name))
		d.wake()
	}
}

// Shutdown stops the dispatcher and waits for it, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Stop()
	return d.Wait(ctx)
}

// terminate runs on the control goroutine once Stop has been called.
func (d *Dispatcher) terminate() {
	d.logger.Debug("terminating dispatcher", F("dispatcher", d.name), F("stats", d.Stats().String()))

	d.purgeTimers()
	d.drainIdleWorkers()

	if err := d.awaitWorkers(); err != nil {
		d.logger.Warn("abandoned active workers",
			F("dispatcher", d.name),
			F("active", d.activeWorkers()),
			F("error", err))
	}
	d.cancel()

	for _, o := range d.Outstanding() {
		d.logger.Warn("work item dequeued but never completed",
			F("dispatcher", d.name),
			F("queue", o.Queue),
			F("item", o.Item.ID),
			F("function", o.Item.Function),
			F("age", time.Since(o.DequeuedAt)))
	}

	d.state.Store(int32(StateStopped))
	d.logger.Info("dispatcher terminated", F("dispatcher", d.name), F("stats", d.Stats().String()))
}

func (d *Dispatcher) purgeTimers() {
	var purged []*WorkItem

	d.timerMu.Lock()
	for _, bucket := range d.timers {
		for _, item := range bucket {
			item.inTimers = false
			purged = append(purged, item)
		}
	}
	clear(d.timers)
	d.timerCount = 0
	if d.timer != nil {
		d.timer.cancel()
		d.timer = nil
	}
	d.timerMu.Unlock()

	for _, item := range purged {
		d.purge(item, "timer")
	}
	if len(purged) > 0 {
		d.logger.Debug("purged timers", F("dispatcher", d.name), F("count", len(purged)))
	}
}

// drainIdleWorkers wakes every pooled worker with no queue so it exits.
func (d *Dispatcher) drainIdleWorkers() {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()

	for _, w := range d.pool.Drain() {
		w.queue = nil
		d.actives++
		w.signal()
	}
}

// awaitWorkers polls the active worker count until it reaches zero or the
// shutdown policy gives up.
func (d *Dispatcher) awaitWorkers() error {
	policy := d.cfg.Shutdown

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = policy.Multiplier
	b.RandomizationFactor = 0

	ctx, cancel := context.WithTimeout(context.Background(), policy.Timeout)
	defer cancel()

	_, err := backoff.Retry(ctx, func() (int, error) {
		if n := d.activeWorkers(); n > 0 {
			return n, fmt.Errorf("%w: %d", errWorkersActive, n)
		}
		return 0, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxRetries),
		backoff.WithMaxElapsedTime(policy.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Debug("waiting for workers",
				F("dispatcher", d.name),
				F("error", err),
				F("retry_in", next))
		}),
	)
	return err
}
