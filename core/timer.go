package core

import (
	"sync"
	"time"
)

// timerOwner receives the fire notification of a timer. timerFired is
// called with the owner's timer lock held.
type timerOwner interface {
	timerFired(t *timer)
}

// timer fires once at a target instant and notifies its owner.
//
// Firing and cancellation both run under the owner's timer lock. Firing
// clears the owner reference before notifying; cancellation clears it so a
// fire already in flight finds nothing to notify. Whichever runs first wins.
type timer struct {
	mu    *sync.Mutex
	owner timerOwner
	when  time.Time
	t     *time.Timer
}

// newTimer arms a timer for when. It must be called with mu held.
func newTimer(mu *sync.Mutex, owner timerOwner, when time.Time) *timer {
	tm := &timer{mu: mu, owner: owner, when: when}
	delta := max(time.Until(when), MinTimerDelta)
	tm.t = time.AfterFunc(delta, tm.fire)
	return tm
}

func (tm *timer) fire() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	owner := tm.owner
	tm.owner = nil
	if owner != nil {
		owner.timerFired(tm)
	}
}

// cancel must be called with mu held.
func (tm *timer) cancel() {
	tm.owner = nil
	tm.t.Stop()
}

// pending reports whether the timer can still fire. Call with mu held.
func (tm *timer) pending() bool {
	return tm.owner != nil
}
