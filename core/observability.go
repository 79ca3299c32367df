package core

import (
	"fmt"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Dispatcher.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// QueueStats represents runtime observability state for a queue.
type QueueStats struct {
	Name          string
	ID            string
	Pending       int
	Draining      bool
	Handled       int64
	Failures      int64
	LastHandledAt time.Time
}

// Stats represents runtime observability state for a dispatcher.
type Stats struct {
	Name  string
	State State

	// Worker lifecycle.
	WorkersCreated   int64
	WorkersDestroyed int64
	Active           int
	MaxActive        int
	Pooled           int
	MaxPooled        int
	WaitingQueues    int

	// Pool traffic. Gets counts assignment attempts, Regets the ones served
	// from the idle pool and Ungets the ones that found the queue already
	// owned. Puts counts workers handing themselves back, Reputs the ones
	// parked in the pool and Unputs the ones rebound to the same queue
	// because items arrived during release.
	Gets   int64
	Regets int64
	Ungets int64
	Puts   int64
	Reputs int64
	Unputs int64

	// Item flow.
	Enqueued    int64
	Dequeued    int64
	Drains      int64
	Purged      int64
	Timers      int
	TimerArmed  bool
	Outstanding int
}

// String renders the stats on one line, suitable for termination logs.
func (s Stats) String() string {
	return fmt.Sprintf(
		"%s[%s] workers: new=%d del=%d active=%d max_active=%d pooled=%d max_pooled=%d waiting=%d "+
			"pool: get=%d reget=%d unget=%d put=%d reput=%d unput=%d "+
			"items: enqueued=%d dequeued=%d drains=%d purged=%d timers=%d armed=%t outstanding=%d",
		s.Name, s.State,
		s.WorkersCreated, s.WorkersDestroyed, s.Active, s.MaxActive, s.Pooled, s.MaxPooled, s.WaitingQueues,
		s.Gets, s.Regets, s.Ungets, s.Puts, s.Reputs, s.Unputs,
		s.Enqueued, s.Dequeued, s.Drains, s.Purged, s.Timers, s.TimerArmed, s.Outstanding,
	)
}

type dispatcherCounters struct {
	created   atomic.Int64
	destroyed atomic.Int64
	gets      atomic.Int64
	regets    atomic.Int64
	ungets    atomic.Int64
	puts      atomic.Int64
	reputs    atomic.Int64
	unputs    atomic.Int64
	enqueued  atomic.Int64
	dequeued  atomic.Int64
	drains    atomic.Int64
	purged    atomic.Int64
}
