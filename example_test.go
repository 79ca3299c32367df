package dispatch_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	dispatch "github.com/Swind/go-dispatch"
)

// ExampleCreateQueue demonstrates the basic usage with only one import.
func ExampleCreateQueue() {
	dispatch.InitGlobalDispatcher(nil)
	defer dispatch.ShutdownGlobalDispatcher()

	q := dispatch.CreateQueue("print", dispatch.HandlerFunc(func(ctx context.Context, item *dispatch.WorkItem) error {
		fmt.Println(item.Payload)
		return item.Complete(nil)
	}))

	wait := dispatch.NewWaitTarget()
	q.Submit(dispatch.NewPayloadItem("Item 1", nil))
	q.Submit(dispatch.NewPayloadItem("Item 2", nil))
	q.Submit(dispatch.NewPayloadItem("Item 3", wait))
	wait.Wait()

	// Output:
	// Item 1
	// Item 2
	// Item 3
}

// ExampleQueue_Submit demonstrates a two-stage pipeline: the first queue
// forwards each item to the second, which completes it.
func ExampleQueue_Submit() {
	d := dispatch.NewDispatcher(nil)
	defer func() {
		d.Stop()
		d.Join()
	}()

	store := dispatch.NewQueue(d, "store", dispatch.HandlerFunc(func(ctx context.Context, item *dispatch.WorkItem) error {
		fmt.Println("stored", item.Payload)
		return item.Complete(nil)
	}))
	parse := dispatch.NewQueue(d, "parse", dispatch.HandlerFunc(func(ctx context.Context, item *dispatch.WorkItem) error {
		item.Payload = strings.ToUpper(item.Payload.(string))
		store.Submit(item)
		return nil
	}))

	wait := dispatch.NewWaitTarget()
	for _, word := range []string{"alpha", "beta"} {
		parse.Submit(dispatch.NewPayloadItem(word, wait))
		wait.Wait()
	}

	// Output:
	// stored ALPHA
	// stored BETA
}

// ExampleDispatcher_AddTimer demonstrates timer delivery and cancellation.
func ExampleDispatcher_AddTimer() {
	d := dispatch.NewDispatcher(nil)
	defer func() {
		d.Stop()
		d.Join()
	}()

	fired := dispatch.NewWaitTarget()
	item := dispatch.NewPayloadItem("tick", fired)
	cancelled := dispatch.NewPayloadItem("never", nil)

	d.AddTimer(20*time.Millisecond, item)
	d.AddTimer(20*time.Millisecond, cancelled)
	fmt.Println("cancelled:", d.DelTimer(cancelled))

	fired.Wait()
	fmt.Println(item.Payload, "err:", item.Err())
	fmt.Println("cancelled again:", d.DelTimer(cancelled))

	// Output:
	// cancelled: true
	// tick err: <nil>
	// cancelled again: false
}

// ExampleFCChase demonstrates waiting for everything queued so far.
func ExampleFCChase() {
	d := dispatch.NewDispatcher(nil)
	defer func() {
		d.Stop()
		d.Join()
	}()

	var total int
	q := dispatch.NewQueue(d, "sum", dispatch.HandlerFunc(func(ctx context.Context, item *dispatch.WorkItem) error {
		total += item.Payload.(int)
		return item.Complete(nil)
	}))
	for i := 1; i <= 10; i++ {
		q.Submit(dispatch.NewPayloadItem(i, nil))
	}

	wait := dispatch.NewWaitTarget()
	q.Submit(dispatch.NewWorkItem(wait, dispatch.FCChase))
	wait.Wait()
	fmt.Println("total:", total)

	// Output:
	// total: 55
}
