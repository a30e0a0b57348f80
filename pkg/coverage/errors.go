package coverage

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when collection is active.
	ErrAlreadyStarted = errors.New("coverage collection already started")

	// ErrNotStarted is returned by Stop when collection is not active.
	ErrNotStarted = errors.New("coverage collection not started")
)
