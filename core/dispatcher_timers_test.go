package core_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-dispatch/core"
)

// TestAddTimer_DeliversAfterDelay verifies basic timer delivery
// Given: a running dispatcher
// When: an item is scheduled 50ms ahead
// Then: it completes with no error no earlier than its scheduled time
func TestAddTimer_DeliversAfterDelay(t *testing.T) {
	// Arrange
	d := newTestDispatcher(t, nil)
	rec := newCompletionRecorder(1)
	item := core.NewWorkItem(rec, core.FCNone)

	// Act
	start := time.Now()
	d.AddTimer(50*time.Millisecond, item)

	// Assert
	got := rec.next(t, 2*time.Second)
	elapsed := time.Since(start)
	if got.Err() != nil {
		t.Errorf("err: got = %v, want nil", got.Err())
	}
	// Delivery may run up to 2ms early.
	if elapsed < 45*time.Millisecond {
		t.Errorf("delivered after %v, want >= ~50ms", elapsed)
	}
	if item.ScheduledAt().IsZero() {
		t.Error("ScheduledAt() is zero after AddTimer")
	}
}

// TestAddTimer_DeliveryOrder verifies earlier timers fire first
// Given: three items scheduled out of order within a few hundred milliseconds
// When: the timers fire
// Then: items complete in due-time order
func TestAddTimer_DeliveryOrder(t *testing.T) {
	// Arrange
	d := newTestDispatcher(t, nil)
	rec := newCompletionRecorder(3)
	now := time.Now()

	// Act
	d.AddTimerAt(now.Add(150*time.Millisecond), core.NewPayloadItem("c", rec))
	d.AddTimerAt(now.Add(30*time.Millisecond), core.NewPayloadItem("a", rec))
	d.AddTimerAt(now.Add(90*time.Millisecond), core.NewPayloadItem("b", rec))

	// Assert
	for _, want := range []string{"a", "b", "c"} {
		if got := rec.next(t, 2*time.Second).Payload; got != want {
			t.Errorf("delivery: got = %v, want = %s", got, want)
		}
	}
	if got := d.Stats().Timers; got != 0 {
		t.Errorf("Timers after delivery: got = %d, want = 0", got)
	}
}

// TestAddTimer_PastTimeDeliversPromptly verifies overdue items are not lost
// Given: a running dispatcher
// When: an item is scheduled one second in the past
// Then: it completes almost immediately
func TestAddTimer_PastTimeDeliversPromptly(t *testing.T) {
	d := newTestDispatcher(t, nil)
	rec := newCompletionRecorder(1)

	d.AddTimerAt(time.Now().Add(-time.Second), core.NewWorkItem(rec, core.FCNone))

	rec.next(t, 500*time.Millisecond)
}

// TestDelTimer_Scenario verifies cancel semantics
// Given: an item scheduled 100ms ahead
// When: DelTimer is called before it fires
// Then: DelTimer returns true, the item never completes, and a second DelTimer returns false
func TestDelTimer_Scenario(t *testing.T) {
	// Arrange
	d := newTestDispatcher(t, nil)
	rec := newCompletionRecorder(1)
	item := core.NewWorkItem(rec, core.FCNone)
	d.AddTimer(100*time.Millisecond, item)

	// Act
	removed := d.DelTimer(item)

	// Assert
	if !removed {
		t.Fatal("DelTimer() = false for a scheduled item, want true")
	}
	rec.none(t, 200*time.Millisecond)
	if item.Completed() {
		t.Error("cancelled item completed")
	}
	if d.DelTimer(item) {
		t.Error("second DelTimer() = true, want false")
	}
	if d.Stats().TimerArmed {
		t.Error("timer still armed with an empty table")
	}
}

// TestDelTimer_UnknownItem verifies DelTimer is a no-op for unscheduled items
func TestDelTimer_UnknownItem(t *testing.T) {
	d := newTestDispatcher(t, nil)
	if d.DelTimer(core.NewWorkItem(nil, core.FCNone)) {
		t.Error("DelTimer() = true for an unscheduled item, want false")
	}
}

// TestDelTimer_KeepsOtherItems verifies cancelling one item leaves the rest scheduled
// Given: two items scheduled for the same instant
// When: one of them is cancelled
// Then: the other still fires
func TestDelTimer_KeepsOtherItems(t *testing.T) {
	// Arrange
	d := newTestDispatcher(t, nil)
	rec := newCompletionRecorder(2)
	when := time.Now().Add(40 * time.Millisecond)
	keep := core.NewPayloadItem("keep", rec)
	drop := core.NewPayloadItem("drop", rec)
	d.AddTimerAt(when, keep)
	d.AddTimerAt(when, drop)

	// Act
	d.DelTimer(drop)

	// Assert
	if got := rec.next(t, time.Second).Payload; got != "keep" {
		t.Errorf("delivered: got = %v, want = keep", got)
	}
	rec.none(t, 50*time.Millisecond)
}

// TestAddTimer_Reschedule verifies scheduling an item twice moves it
// Given: an item scheduled 1 hour ahead
// When: it is rescheduled 20ms ahead
// Then: it fires once, soon, and the table holds no stale entry
func TestAddTimer_Reschedule(t *testing.T) {
	// Arrange
	d := newTestDispatcher(t, nil)
	rec := newCompletionRecorder(2)
	item := core.NewWorkItem(rec, core.FCNone)
	d.AddTimer(time.Hour, item)

	// Act
	d.AddTimer(20*time.Millisecond, item)

	// Assert
	if got := d.Stats().Timers; got != 1 {
		t.Errorf("Timers after reschedule: got = %d, want = 1", got)
	}
	rec.next(t, time.Second)
	rec.none(t, 50*time.Millisecond)
	if got := d.Stats().Timers; got != 0 {
		t.Errorf("Timers after delivery: got = %d, want = 0", got)
	}
}

// TestDelTimer_RaceWithFire verifies cancel and fire never both take effect
// Given: 1000 items due in the same instant
// When: half are cancelled concurrently while the timer fires
// Then: every cancelled item stays uncompleted and every other item completes exactly once
func TestDelTimer_RaceWithFire(t *testing.T) {
	// Arrange
	const numItems = 1000
	d := newTestDispatcher(t, nil)

	counts := make([]atomic.Int32, numItems)
	items := make([]*core.WorkItem, numItems)
	for i := range items {
		idx := i
		items[i] = core.NewWorkItem(core.CompletionFunc(func(*core.WorkItem) {
			counts[idx].Add(1)
		}), core.FCNone)
	}
	when := time.Now().Add(20 * time.Millisecond)
	for _, item := range items {
		d.AddTimerAt(when, item)
	}

	// Act
	cancelled := make([]bool, numItems)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Until(when) - time.Millisecond)
			for i := w; i < numItems; i += 8 {
				cancelled[i] = d.DelTimer(items[i])
			}
		}()
	}
	wg.Wait()

	// Assert
	waitFor(t, 2*time.Second, func() bool {
		for i := range items {
			if !cancelled[i] && counts[i].Load() == 0 {
				return false
			}
		}
		return true
	})
	time.Sleep(20 * time.Millisecond)
	var nCancelled int
	for i := range items {
		got := counts[i].Load()
		switch {
		case cancelled[i] && got != 0:
			t.Errorf("item %d: cancelled but completed %d times", i, got)
		case !cancelled[i] && got != 1:
			t.Errorf("item %d: not cancelled but completed %d times", i, got)
		}
		if cancelled[i] {
			nCancelled++
		}
	}
	t.Logf("cancelled %d of %d before fire", nCancelled, numItems/2)
}

// TestAddTimer_AfterStop verifies timers are refused once stopping
// Given: a stopped dispatcher
// When: AddTimer is called
// Then: the item completes with ErrPurged immediately
func TestAddTimer_AfterStop(t *testing.T) {
	d := newTestDispatcher(t, nil)
	d.Stop()
	d.Join()

	rec := newCompletionRecorder(1)
	d.AddTimer(time.Second, core.NewWorkItem(rec, core.FCNone))

	if err := rec.next(t, 100*time.Millisecond).Err(); err != core.ErrPurged {
		t.Errorf("err: got = %v, want ErrPurged", err)
	}
}
