package core

import (
	"sync"

	"github.com/eapache/queue"
)

// pendingList is the FIFO inbox of a Queue. Producers append from any
// goroutine while the bound worker pops from the head.
type pendingList struct {
	mu    sync.Mutex
	items *queue.Queue
}

func newPendingList() *pendingList {
	return &pendingList{items: queue.New()}
}

func (p *pendingList) Push(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items.Add(item)
}

func (p *pendingList) Pop() (*WorkItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.items.Length() == 0 {
		return nil, false
	}
	return p.items.Remove().(*WorkItem), true
}

func (p *pendingList) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items.Length()
}

func (p *pendingList) IsEmpty() bool {
	return p.Len() == 0
}
