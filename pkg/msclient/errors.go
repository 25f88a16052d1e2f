package msclient

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by direct RPCs and the uploader, classified per
// the gateway's error-handling design (transient network, stale metadata,
// signature/auth, protocol misuse).
var (
	ErrUnauthenticated  = errors.New("msclient: session expired, re-authentication required")
	ErrSignatureInvalid = errors.New("msclient: signature verification failed")
	ErrStale            = errors.New("msclient: stale metadata, view reload required")
	ErrNotFound         = errors.New("msclient: entry not found")
	ErrConflict         = errors.New("msclient: conflict")
	ErrClosed           = errors.New("msclient: client closed")
)

// RPCError wraps a non-2xx MS reply with the procedure name and status
// code, so callers can log or classify without re-parsing the response.
type RPCError struct {
	Op     string
	Status int
	Body   string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("msclient: %s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

func (e *RPCError) classify() error {
	switch e.Status {
	case 401, 403:
		return ErrUnauthenticated
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 422:
		return ErrStale
	default:
		return e
	}
}
