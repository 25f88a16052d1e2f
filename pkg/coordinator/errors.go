package coordinator

import "errors"

var (
	// ErrStale is returned to a PREPARE/TRUNCATE sender whose file_version
	// no longer matches the coordinator's.
	ErrStale = errors.New("coordinator: stale file_version")

	// ErrInvalidSignature is returned when a WriteMsg fails verification
	// against its claimed sender's certificate.
	ErrInvalidSignature = errors.New("coordinator: invalid signature")

	// ErrUnknownSender is returned when the sender's gateway ID has no
	// known certificate, so its signature cannot be checked at all.
	ErrUnknownSender = errors.New("coordinator: unknown sender certificate")

	// ErrCeded is returned by Client.Send when the coordinator's reply
	// says it has given up coordination (REDIRECT), instructing the
	// caller to become the new coordinator.
	ErrCeded = errors.New("coordinator: coordinator ceded, caller should take over")

	// ErrUnreachable wraps a transport failure contacting the
	// coordinator; the caller should treat this the same as ErrCeded.
	ErrUnreachable = errors.New("coordinator: unreachable")
)
