package link

import "errors"

var (
	// ErrNoTransport is returned when a send is attempted with no port attached.
	ErrNoTransport = errors.New("no transport attached")

	// ErrWriteTimeout is returned when a write overran its budget. The packet
	// is dropped; the next state update supersedes it.
	ErrWriteTimeout = errors.New("transport write timed out")
)
