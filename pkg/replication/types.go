// Package replication implements the replica client and vacuumer: the
// queue of PUT/DELETE requests issued against RG peers while a sync is
// in flight, the two-phase GC continuation that chains a manifest
// delete behind every block delete succeeding, and the background
// vacuumer that reconciles anything a crash left half-done.
package replication

import (
	"time"

	"github.com/syndicate-project/gateway/pkg/future"
)

// Kind distinguishes what a replica request is replicating.
type Kind int

const (
	KindPutBlock Kind = iota
	KindPutManifest
	KindDeleteBlock
	KindDeleteManifest
)

func (k Kind) String() string {
	switch k {
	case KindPutBlock:
		return "put_block"
	case KindPutManifest:
		return "put_manifest"
	case KindDeleteBlock:
		return "delete_block"
	case KindDeleteManifest:
		return "delete_manifest"
	default:
		return "unknown"
	}
}

// FileSnapshot names the file and version a replica request belongs to,
// for logging and vacuum-log reconciliation.
type FileSnapshot struct {
	VolumeID    uint64
	FileID      uint64
	FileVersion int64
}

// Result is a replica request's outcome.
type Result struct {
	Succeeded bool
	Err       error
}

// Context is one queued replica request: a target RG, a payload, and the
// future the issuing sync pipeline phase waits on. Mirrors the cache
// future / download context shape via the shared Future[R] primitive.
type Context struct {
	Kind     Kind
	File     FileSnapshot
	BlockID  uint64 // meaningful for KindPutBlock/KindDeleteBlock
	TargetID uint64 // gateway_id of the RG this request targets

	Payload []byte // block bytes or serialized ManifestMsg; empty for deletes

	Future *future.Future[Result]

	// OnComplete, if set, runs after Future resolves, on the worker
	// goroutine — used to chain GC continuations without the caller
	// having to poll.
	OnComplete func(Result)

	enqueuedAt time.Time
}
