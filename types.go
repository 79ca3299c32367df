package dispatch

import "github.com/Swind/go-dispatch/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the dispatch package for most use cases.

// WorkItem is the unit of work submitted to a Queue
type WorkItem = core.WorkItem

// Queue is an ordered inbox drained by one worker at a time
type Queue = core.Queue

// Dispatcher runs queue handlers on a pool of workers
type Dispatcher = core.Dispatcher

// DispatcherConfig configures a Dispatcher
type DispatcherConfig = core.DispatcherConfig

// Handler processes items for a Queue
type Handler = core.Handler

// HandlerFunc adapts a function to Handler
type HandlerFunc = core.HandlerFunc

// CompletionTarget is notified once when an item completes
type CompletionTarget = core.CompletionTarget

// CompletionFunc adapts a function to CompletionTarget
type CompletionFunc = core.CompletionFunc

// WaitTarget lets a producer block until an item completes
type WaitTarget = core.WaitTarget

// NopTarget ignores completions
type NopTarget = core.NopTarget

// FunctionCode is the optional item discriminator
type FunctionCode = core.FunctionCode

// Stats and QueueStats are diagnostic snapshots
type (
	Stats      = core.Stats
	QueueStats = core.QueueStats
)

// Function codes
const (
	FCNone    = core.FCNone
	FCChase   = core.FCChase
	FCInvalid = core.FCInvalid
)

// Completion codes
var (
	ErrProcessing       = core.ErrProcessing
	ErrPurged           = core.ErrPurged
	ErrInvalidFunction  = core.ErrInvalidFunction
	ErrAlreadyCompleted = core.ErrAlreadyCompleted
)

// Constructors
var (
	NewDispatcher  = core.NewDispatcher
	NewQueue       = core.NewQueue
	NewWorkItem    = core.NewWorkItem
	NewPayloadItem = core.NewPayloadItem
	NewWaitTarget  = core.NewWaitTarget
)

// DefaultHandler completes every item immediately
var DefaultHandler = core.DefaultHandler

// CurrentQueue retrieves the Queue whose handler is running from context
var CurrentQueue = core.CurrentQueue
