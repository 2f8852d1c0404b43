package errors

import "errors"

// This package defines the sentinel errors shared by the client core and the
// development gateway. Lower layers wrap them with fmt.Errorf("...: %w", ...)
// and callers classify failures with errors.Is, so no layer needs to know the
// concrete error types of another.

var (
	// ErrTransport signifies that the backend could not be reached or did not
	// produce a usable body: connection failures, non-2xx statuses, and read
	// failures in the middle of a stream.
	ErrTransport = errors.New("transport error")

	// ErrShape signifies that the backend answered but violated the expected
	// envelope (status false, a missing nested field, or a body that is not
	// JSON at all). It is a contract violation, not a network problem.
	ErrShape = errors.New("unexpected response shape")

	// ErrTimeout signifies that a bounded call ran out of time. Only the health
	// check is bounded.
	ErrTimeout = errors.New("timeout")

	// ErrBusy signifies that a request slot already has a request in flight.
	// The new submission is rejected, never queued.
	ErrBusy = errors.New("request already in flight")

	// ErrNotFound signifies that a requested resource (usually a thread) does
	// not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input failed validation.
	// The API layer maps it to a 400 Bad Request.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized signifies a missing or wrong API key.
	// The API layer maps it to a 401 Unauthorized.
	ErrUnauthorized = errors.New("unauthorized")
)
