package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling handler panics
// =============================================================================

// PanicHandler is called when a queue handler panics while processing an item.
// The item is force-completed with ErrProcessing after the handler returns.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a handler panics.
	//
	// Parameters:
	// - ctx: The handler context (carries the current queue and worker id)
	// - queueName: The name of the queue whose handler panicked
	// - workerID: The id of the worker draining the queue
	// - panicInfo: The recovered panic value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueName string, workerID int64, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler reports panics through a Logger.
type LoggingPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, queueName string, workerID int64, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	logger.Error("handler panicked",
		F("queue", queueName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting dispatcher metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on worker goroutines.
type Metrics interface {
	// RecordWorkDuration records how long one Handle call took.
	RecordWorkDuration(queueName string, fc FunctionCode, duration time.Duration)

	// RecordHandlerFailure records a handler panic or returned error.
	// reason is "panic" or "error".
	RecordHandlerFailure(queueName string, reason string)

	// RecordQueueDepth records the pending depth observed when a drain starts.
	RecordQueueDepth(queueName string, depth int)

	// RecordItemPurged records an item completed with ErrPurged.
	// source is "enqueue" or "timer".
	RecordItemPurged(source string)

	// RecordTimerDelivery records how late a timer item was delivered.
	RecordTimerDelivery(lateness time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordWorkDuration does nothing
func (m *NilMetrics) RecordWorkDuration(queueName string, fc FunctionCode, duration time.Duration) {
}

// RecordHandlerFailure does nothing
func (m *NilMetrics) RecordHandlerFailure(queueName string, reason string) {
}

// RecordQueueDepth does nothing
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int) {
}

// RecordItemPurged does nothing
func (m *NilMetrics) RecordItemPurged(source string) {
}

// RecordTimerDelivery does nothing
func (m *NilMetrics) RecordTimerDelivery(lateness time.Duration) {
}

// =============================================================================
// DispatcherConfig: Configuration for Dispatcher
// =============================================================================

const (
	// DefaultMaxPooled is the default idle pool ceiling.
	DefaultMaxPooled = 32

	// MinTimerDelta is the shortest delay a Timer is armed with.
	MinTimerDelta = time.Millisecond
)

// ShutdownPolicy bounds how long Stop waits for active workers.
//
// The wait polls the active worker count with exponential backoff and gives
// up after MaxRetries polls or Timeout, whichever comes first. Workers still
// running at that point are abandoned: their handler context is cancelled and
// the dispatcher reports itself stopped.
type ShutdownPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxRetries      uint
	Timeout         time.Duration
}

// DefaultShutdownPolicy waits at most 16 polls or 30 seconds.
func DefaultShutdownPolicy() ShutdownPolicy {
	return ShutdownPolicy{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		MaxRetries:      16,
		Timeout:         30 * time.Second,
	}
}

// DispatcherConfig holds configuration options for Dispatcher.
// All handlers are optional; if not provided, default implementations will be used.
type DispatcherConfig struct {
	// Name labels log lines and stats. Defaults to "dispatcher".
	Name string

	// MaxWorkers is the hard ceiling on concurrently active workers.
	// Zero means unlimited: every idle queue gets a worker immediately.
	// When the ceiling is reached, queues wait in FIFO order for the next
	// worker that finishes a drain.
	MaxWorkers int

	// WorkerPool decides whether finished workers are kept for reuse.
	// Defaults to NewBoundedWorkerPool(DefaultMaxPooled).
	WorkerPool WorkerPool

	// CheckCompletion tracks every dequeued item until it completes and
	// reports the ones that never did when the dispatcher stops. Double
	// completions are logged with a stack trace.
	CheckCompletion bool

	// Shutdown bounds the wait for active workers during Stop.
	Shutdown ShutdownPolicy

	// Logger defaults to the global zap logger.
	Logger Logger

	// PanicHandler defaults to LoggingPanicHandler.
	PanicHandler PanicHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics
}

// DefaultDispatcherConfig returns a config with default handlers.
func DefaultDispatcherConfig() *DispatcherConfig {
	logger := defaultLogger()
	return &DispatcherConfig{
		Name:         "dispatcher",
		WorkerPool:   NewBoundedWorkerPool(DefaultMaxPooled),
		Shutdown:     DefaultShutdownPolicy(),
		Logger:       logger,
		PanicHandler: &LoggingPanicHandler{Logger: logger},
		Metrics:      &NilMetrics{},
	}
}

// withDefaults fills unset fields. The receiver is not modified.
func (c *DispatcherConfig) withDefaults() DispatcherConfig {
	var cfg DispatcherConfig
	if c != nil {
		cfg = *c
	}
	if cfg.Name == "" {
		cfg.Name = "dispatcher"
	}
	if cfg.WorkerPool == nil {
		cfg.WorkerPool = NewBoundedWorkerPool(DefaultMaxPooled)
	}
	if cfg.MaxWorkers < 0 {
		cfg.MaxWorkers = 0
	}
	def := DefaultShutdownPolicy()
	if cfg.Shutdown.InitialInterval <= 0 {
		cfg.Shutdown.InitialInterval = def.InitialInterval
	}
	if cfg.Shutdown.MaxInterval <= 0 {
		cfg.Shutdown.MaxInterval = def.MaxInterval
	}
	if cfg.Shutdown.Multiplier < 1 {
		cfg.Shutdown.Multiplier = def.Multiplier
	}
	if cfg.Shutdown.MaxRetries == 0 {
		cfg.Shutdown.MaxRetries = def.MaxRetries
	}
	if cfg.Shutdown.Timeout <= 0 {
		cfg.Shutdown.Timeout = def.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger()
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &LoggingPanicHandler{Logger: cfg.Logger}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	return cfg
}
