// Package syncpipeline turns a dirtied in-core file entry into durable,
// replicated, MS-visible state: flush buffered blocks to the local cache,
// replicate blocks and manifest to the replica gateways, commit the write
// through the coordinator (or directly if this gateway already holds
// coordinatorship), and release garbage to pkg/replication once the
// commit lands. Concurrent fsyncs on the same file serialize their
// metadata commits through a per-file queue while their data replication
// runs in parallel.
package syncpipeline

// Outcome is Fsync's closed result set.
type Outcome int

const (
	// SyncNothing means the handle was not dirty; Phase 0 returned
	// immediately.
	SyncNothing Outcome = iota
	// SyncWaitQueued means data sync and replication completed but the
	// caller's SyncContext was not the head of its file's metadata
	// commit queue; the caller should not retry, the queue will drain it.
	SyncWaitQueued
	// SyncDone means every phase ran to completion, including the
	// metadata commit.
	SyncDone
)

func (o Outcome) String() string {
	switch o {
	case SyncNothing:
		return "nothing"
	case SyncWaitQueued:
		return "wait_queued"
	case SyncDone:
		return "done"
	default:
		return "unknown"
	}
}
