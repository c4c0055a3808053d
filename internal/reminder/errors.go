package reminder

import "errors"

var (
	// ErrSchedulingFailure is returned when the engine refuses to admit an event's triggers.
	ErrSchedulingFailure = errors.New("scheduling failure")
	// ErrCapacity means admitting the triggers would exceed Config.MaxPending.
	ErrCapacity = errors.New("pending trigger capacity exceeded")
	// ErrUnknownTag means a fire request named a tag that is not one of Offsets().
	ErrUnknownTag = errors.New("unknown reminder tag")
	// ErrAlreadyRunning is returned by Run when another Run loop is active.
	ErrAlreadyRunning = errors.New("engine loop already running")
)
