package engine

import "errors"

// Domain failures returned to callers. All are expected, local outcomes;
// handlers map them to HTTP statuses with errors.Is.
var (
	// ErrValidation marks malformed input, rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks a status change not legal from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrDockUnavailable marks a window conflict with operating hours or a busy rule.
	ErrDockUnavailable = errors.New("dock unavailable")
	// ErrCapacityConflict marks a second UNLOADING booking on one dock.
	ErrCapacityConflict = errors.New("dock already has an unloading booking")
	// ErrInvalidSwap marks a swap across docks or involving a non-queued-idle booking.
	ErrInvalidSwap = errors.New("invalid swap")
	// ErrNotFound marks a missing booking, dock or warehouse.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity marks an internal invariant violation. The warehouse's
	// mutation path is halted rather than silently repaired.
	ErrIntegrity = errors.New("queue integrity violation")
)
