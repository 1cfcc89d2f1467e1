package classify

import "errors"

var (
	// ErrInvalidRequest is returned for malformed input before any dependency is called.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrClassifierUnavailable means the backend was unreachable or answered with an error.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrClassifierTimeout means the backend did not answer within its time budget.
	// Callers may retry timeouts; they should not retry ErrClassifierUnavailable.
	ErrClassifierTimeout = errors.New("classifier timeout")
)
