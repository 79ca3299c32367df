package core

import (
	"sort"
	"sync"
	"time"
)

// OutstandingItem is a dequeued work item that has not completed yet.
type OutstandingItem struct {
	Item       *WorkItem
	Queue      string
	DequeuedAt time.Time

	seq uint64
}

// completionTracker records items between dequeue and completion.
type completionTracker struct {
	mu    sync.Mutex
	seq   uint64
	items map[*WorkItem]OutstandingItem
}

func newCompletionTracker() *completionTracker {
	return &completionTracker{items: make(map[*WorkItem]OutstandingItem)}
}

func (t *completionTracker) add(item *WorkItem, queue string) {
	t.mu.Lock()
	t.seq++
	t.items[item] = OutstandingItem{Item: item, Queue: queue, DequeuedAt: time.Now(), seq: t.seq}
	t.mu.Unlock()
	item.tracker.Store(t)
}

func (t *completionTracker) remove(item *WorkItem) {
	t.mu.Lock()
	delete(t.items, item)
	t.mu.Unlock()
}

// handoff stops tracking an item that is being forwarded to another queue.
func (t *completionTracker) handoff(item *WorkItem) {
	if item.tracker.CompareAndSwap(t, nil) {
		t.remove(item)
	}
}

func (t *completionTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// snapshot returns the outstanding items, oldest first.
func (t *completionTracker) snapshot() []OutstandingItem {
	t.mu.Lock()
	out := make([]OutstandingItem, 0, len(t.items))
	for _, o := range t.items {
		out = append(out, o)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}
