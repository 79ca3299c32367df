package dispatch

import (
	"sync"

	"github.com/Swind/go-dispatch/core"
)

// =============================================================================
// Global Dispatcher Helper (Singleton)
// =============================================================================

var (
	globalDispatcher *core.Dispatcher
	globalMu         sync.Mutex
)

// InitGlobalDispatcher creates the global dispatcher. A nil cfg uses defaults.
// Later calls are no-ops until ShutdownGlobalDispatcher.
func InitGlobalDispatcher(cfg *DispatcherConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		return // Already initialized
	}
	if cfg == nil {
		cfg = &DispatcherConfig{Name: "global"}
	}
	globalDispatcher = core.NewDispatcher(cfg)
}

// GetGlobalDispatcher returns the global dispatcher.
// It panics if InitGlobalDispatcher has not been called.
func GetGlobalDispatcher() *Dispatcher {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher == nil {
		panic("global dispatcher not initialized. Call InitGlobalDispatcher() first.")
	}
	return globalDispatcher
}

// ShutdownGlobalDispatcher stops the global dispatcher and waits for it.
func ShutdownGlobalDispatcher() {
	globalMu.Lock()
	d := globalDispatcher
	globalDispatcher = nil
	globalMu.Unlock()

	if d != nil {
		d.Stop()
		d.Join()
	}
}

// CreateQueue creates a Queue served by the global dispatcher.
func CreateQueue(name string, h Handler) *Queue {
	return core.NewQueue(GetGlobalDispatcher(), name, h)
}
