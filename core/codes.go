package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Completion codes
// =============================================================================

// Completion codes are plain errors. A nil code means the item completed
// normally (or, for the timer path, was delivered on time).
var (
	// ErrProcessing is the generic processing error. Handler panics and
	// handler-returned errors are reported as errors wrapping it.
	ErrProcessing = errors.New("dispatch: processing error")

	// ErrPurged is the completion code of items discarded because the
	// dispatcher was stopping.
	ErrPurged = errors.New("dispatch: purged")

	// ErrInvalidFunction is the generic invalid function code error.
	ErrInvalidFunction = errors.New("dispatch: invalid function code")

	// ErrAlreadyCompleted is returned by Complete when the item was already
	// completed. The completion target is not invoked again.
	ErrAlreadyCompleted = errors.New("dispatch: work item already completed")
)

// InvalidFunctionError reports a reserved function code the dispatcher does
// not implement.
type InvalidFunctionError struct {
	Code FunctionCode
}

func (e *InvalidFunctionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidFunction, e.Code)
}

// Is lets errors.Is(err, ErrInvalidFunction) match.
func (e *InvalidFunctionError) Is(target error) bool {
	return target == ErrInvalidFunction
}

// processingError wraps a handler failure (panic value or returned error).
func processingError(cause any) error {
	if err, ok := cause.(error); ok {
		return fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return fmt.Errorf("%w: %v", ErrProcessing, cause)
}

// =============================================================================
// Function codes
// =============================================================================

// FunctionCode is an optional discriminator carried by a WorkItem.
// Zero means "none". Positive values belong to the application; negative
// values are reserved for built-in codes handled by the dispatcher itself.
type FunctionCode int

const (
	// FCNone means the item carries no function code.
	FCNone FunctionCode = 0

	// FCChase completes as soon as it is reached. Enqueue it behind other
	// items to learn when everything submitted before it has been handled.
	FCChase FunctionCode = -1

	// FCInvalid is a reserved code the dispatcher always rejects with
	// ErrInvalidFunction.
	FCInvalid FunctionCode = -2
)

// IsBuiltin reports whether the code is reserved for the dispatcher.
func (fc FunctionCode) IsBuiltin() bool {
	return fc < 0
}

func (fc FunctionCode) String() string {
	switch fc {
	case FCNone:
		return "none"
	case FCChase:
		return "chase"
	case FCInvalid:
		return "invalid"
	}
	if fc < 0 {
		return fmt.Sprintf("builtin(%d)", int(fc))
	}
	return fmt.Sprintf("fc(%d)", int(fc))
}
