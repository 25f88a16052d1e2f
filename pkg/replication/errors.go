package replication

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the replica request queue
	// is at capacity; the caller's sync phase must treat this as a
	// replication failure and revert per invariant I3.
	ErrQueueFull = errors.New("replication: queue full")

	// ErrNoTransport is returned when no TransportResolver entry matches
	// a request's target gateway.
	ErrNoTransport = errors.New("replication: no transport for target")

	// ErrClosed is returned by Enqueue after Stop has been called.
	ErrClosed = errors.New("replication: queue closed")
)
