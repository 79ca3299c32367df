// Package demo wires a small parse -> square -> sum pipeline onto a
// Dispatcher. dispatchd runs it to exercise the runtime end to end.
package demo

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-dispatch/core"
)

// Result summarizes one Run.
type Result struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Sum       int64
	Elapsed   time.Duration
}

// Pipeline owns the demo queues.
type Pipeline struct {
	d      *core.Dispatcher
	logger core.Logger

	Parse  *core.Queue
	Square *core.Queue
	Sum    *core.Queue

	// Owned by the Sum queue handler.
	sum int64
}

// NewPipeline creates the queues on d.
func NewPipeline(d *core.Dispatcher, logger core.Logger) *Pipeline {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	p := &Pipeline{d: d, logger: logger}
	p.Sum = core.NewQueue(d, "sum", core.HandlerFunc(p.handleSum))
	p.Square = core.NewQueue(d, "square", core.HandlerFunc(p.handleSquare))
	p.Parse = core.NewQueue(d, "parse", core.HandlerFunc(p.handleParse))
	return p
}

func (p *Pipeline) handleParse(ctx context.Context, item *core.WorkItem) error {
	raw, ok := item.Payload.(string)
	if !ok {
		return fmt.Errorf("parse: payload %T is not a string", item.Payload)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	item.Payload = n
	p.Square.Submit(item)
	return nil
}

func (p *Pipeline) handleSquare(ctx context.Context, item *core.WorkItem) error {
	n := item.Payload.(int64)
	item.Payload = n * n
	p.Sum.Submit(item)
	return nil
}

func (p *Pipeline) handleSum(ctx context.Context, item *core.WorkItem) error {
	p.sum += item.Payload.(int64)
	return item.Complete(nil)
}

// Total returns the running sum. It enqueues a chase item on the Sum queue
// and waits for it, so every item that reached Sum before the call counts.
func (p *Pipeline) Total(ctx context.Context) (int64, error) {
	wait := core.NewWaitTarget()
	var total int64
	chase := core.NewWorkItem(core.CompletionFunc(func(item *core.WorkItem) {
		total = p.sum
		wait.OnComplete(item)
	}), core.FCChase)
	p.Sum.Submit(chase)
	if err := wait.WaitContext(ctx); err != nil {
		return 0, err
	}
	if err := chase.Err(); err != nil {
		return 0, err
	}
	return total, nil
}

// Run submits items strings "0".."items-1" from each of producers goroutines,
// plus one malformed item per producer, and waits for every completion.
func (p *Pipeline) Run(ctx context.Context, producers, items int) (Result, error) {
	start := time.Now()
	var res Result
	var pending sync.WaitGroup
	var succeeded, failed atomic.Int64

	target := core.CompletionFunc(func(item *core.WorkItem) {
		if item.Err() != nil {
			failed.Add(1)
		} else {
			succeeded.Add(1)
		}
		pending.Done()
	})

	before, err := p.Total(ctx)
	if err != nil {
		return res, err
	}

	g, gctx := errgroup.WithContext(ctx)
	var submitted atomic.Int64
	for w := range producers {
		g.Go(func() error {
			for i := range items + 1 {
				if err := gctx.Err(); err != nil {
					return err
				}
				raw := strconv.Itoa(i)
				if i == items {
					raw = fmt.Sprintf("bad-%d", w)
				}
				pending.Add(1)
				submitted.Add(1)
				p.Parse.Submit(core.NewPayloadItem(raw, target))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return res, ctx.Err()
	}

	after, err := p.Total(ctx)
	if err != nil {
		return res, err
	}

	res = Result{
		Submitted: submitted.Load(),
		Succeeded: succeeded.Load(),
		Failed:    failed.Load(),
		Sum:       after - before,
		Elapsed:   time.Since(start),
	}
	p.logger.Info("demo run finished",
		core.F("submitted", res.Submitted),
		core.F("succeeded", res.Succeeded),
		core.F("failed", res.Failed),
		core.F("sum", res.Sum),
		core.F("elapsed", res.Elapsed))
	return res, nil
}

// Ticker re-arms itself on the dispatcher timer every interval and logs a
// stats line each time it fires. It stops once the dispatcher purges it.
type Ticker struct {
	d        *core.Dispatcher
	logger   core.Logger
	interval time.Duration
	ticks    atomic.Int64
}

// StartTicker arms the first tick.
func StartTicker(d *core.Dispatcher, logger core.Logger, interval time.Duration) *Ticker {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	t := &Ticker{d: d, logger: logger, interval: interval}
	d.AddTimer(interval, core.NewWorkItem(t, core.FCNone))
	return t
}

// OnComplete handles one tick.
func (t *Ticker) OnComplete(item *core.WorkItem) {
	if item.Err() != nil {
		t.logger.Debug("ticker stopped", core.F("error", item.Err()), core.F("ticks", t.ticks.Load()))
		return
	}
	n := t.ticks.Add(1)
	t.logger.Debug("tick", core.F("n", n), core.F("stats", t.d.Stats().String()))
	t.d.AddTimer(t.interval, core.NewWorkItem(t, core.FCNone))
}

// Ticks returns how many times the ticker fired.
func (t *Ticker) Ticks() int64 {
	return t.ticks.Load()
}
