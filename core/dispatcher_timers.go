package core

import (
	"slices"
	"time"
)

// AddTimer schedules item to be completed with no error after delay.
//
// Timer delivery completes the item rather than handing it to a Queue; a
// completion target that wants handler processing enqueues it itself.
// Scheduling an item that is already scheduled moves it to the new time.
// Once Stop has been called the item is completed with ErrPurged instead.
func (d *Dispatcher) AddTimer(delay time.Duration, item *WorkItem) {
	d.AddTimerAt(time.Now().Add(delay), item)
}

// AddTimerAt is AddTimer with an absolute delivery time.
func (d *Dispatcher) AddTimerAt(when time.Time, item *WorkItem) {
	item.attachLogger(d.logger)

	d.timerMu.Lock()
	if d.State() != StateRunning {
		d.timerMu.Unlock()
		d.purge(item, "timer")
		return
	}

	if item.inTimers {
		d.unlinkTimerLocked(item)
	}
	item.when = when
	item.timerSec = when.Unix()
	item.inTimers = true
	item.scheduledAt.Store(when.UnixNano())
	d.timers[item.timerSec] = append(d.timers[item.timerSec], item)
	d.timerCount++
	d.resetTimerLocked()
	d.timerMu.Unlock()
}

// DelTimer removes a scheduled item without completing it. It reports
// whether the item was still scheduled; an item that already fired, was
// never scheduled or was purged is left alone.
func (d *Dispatcher) DelTimer(item *WorkItem) bool {
	d.timerMu.Lock()
	defer d.timerMu.Unlock()

	if !item.inTimers {
		return false
	}
	if d.unlinkTimerLocked(item) {
		d.resetTimerLocked()
	}
	return true
}

// unlinkTimerLocked removes item from its bucket and reports whether the
// bucket became empty.
func (d *Dispatcher) unlinkTimerLocked(item *WorkItem) bool {
	bucket := d.timers[item.timerSec]
	if i := slices.Index(bucket, item); i >= 0 {
		bucket = slices.Delete(bucket, i, i+1)
		d.timerCount--
	}
	item.inTimers = false

	if len(bucket) == 0 {
		delete(d.timers, item.timerSec)
		return true
	}
	d.timers[item.timerSec] = bucket
	return false
}

// resetTimerLocked arms the timer for the earliest scheduled item. A timer
// already armed no later than that is kept.
func (d *Dispatcher) resetTimerLocked() {
	if len(d.timers) == 0 {
		if d.timer != nil {
			d.timer.cancel()
			d.timer = nil
		}
		return
	}

	minSec := int64(0)
	first := true
	for sec := range d.timers {
		if first || sec < minSec {
			minSec = sec
			first = false
		}
	}
	minWhen := d.timers[minSec][0].when
	for _, item := range d.timers[minSec][1:] {
		if item.when.Before(minWhen) {
			minWhen = item.when
		}
	}

	if d.timer != nil {
		if !d.timer.when.After(minWhen.Add(MinTimerDelta)) {
			return
		}
		d.timer.cancel()
	}
	d.timer = newTimer(&d.timerMu, d, minWhen)
}

// timerFired runs with timerMu held.
func (d *Dispatcher) timerFired(t *timer) {
	if d.timer == t {
		d.timer = nil
	}
	d.wake()
}

// deliverTimers completes every item due now and re-arms the timer.
func (d *Dispatcher) deliverTimers() {
	now := time.Now()
	horizon := now.Add(2 * MinTimerDelta)
	horizonSec := horizon.Unix()

	type dueItem struct {
		item *WorkItem
		when time.Time
	}
	var due []dueItem
	d.timerMu.Lock()
	for sec, bucket := range d.timers {
		if sec > horizonSec {
			continue
		}
		kept := bucket[:0]
		for _, item := range bucket {
			if item.when.Before(horizon) {
				item.inTimers = false
				due = append(due, dueItem{item: item, when: item.when})
			} else {
				kept = append(kept, item)
			}
		}
		clear(bucket[len(kept):])
		if len(kept) == 0 {
			delete(d.timers, sec)
		} else {
			d.timers[sec] = kept
		}
	}
	d.timerCount -= len(due)
	d.timerMu.Unlock()

	slices.SortFunc(due, func(a, b dueItem) int {
		return a.when.Compare(b.when)
	})
	for _, it := range due {
		d.metrics.RecordTimerDelivery(max(now.Sub(it.when), 0))
		_ = it.item.Complete(nil)
	}

	d.timerMu.Lock()
	if d.State() == StateRunning {
		d.resetTimerLocked()
	}
	d.timerMu.Unlock()
}
