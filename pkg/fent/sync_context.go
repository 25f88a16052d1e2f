package fent

import (
	"time"

	"github.com/syndicate-project/gateway/pkg/future"
)

// SyncContext is a snapshot of a file taken at the instant a flush begins:
// cloned attributes, a detached dirty_blocks map, a detached garbage_blocks
// list, an empty list of replica futures, and a semaphore for ordered
// metadata commit. Owned by the flushing goroutine; enqueued on the file's
// sync_queue so subsequent flushes wait for it before touching the MS.
type SyncContext struct {
	FileID      uint64
	FileVersion int64
	VolumeID    uint64

	// Cloned attributes as of the snapshot instant.
	Size  int64
	Mtime time.Time
	Ctime time.Time
	Mode  uint32

	// Manifest as of the snapshot instant, for the coordinator-path
	// republish in Phase 1 step 5.
	Manifest map[uint64]ManifestEntry

	// DirtyBlocks and GarbageBlocks are stolen off the fent at snapshot
	// time, leaving the live fent with empty maps so subsequent writes
	// race freely against this in-flight sync.
	DirtyBlocks   map[uint64]DirtyBlock
	GarbageBlocks []GarbageBlock

	// ReplicaFutures accumulates one future per RG PUT issued for this
	// sync; Phase 3 waits on all of them before releasing.
	ReplicaFutures []*future.Future[ReplicaResult]

	// turn gates metadata commit ordering: a SyncContext only proceeds to
	// Phase 4 once its predecessor in sync_queue has posted turn.
	turn chan struct{}

	// IsCoordinatorPath records whether this gateway was the coordinator
	// at snapshot time, per invariant I3.
	IsCoordinatorPath bool

	// WasReverted is set if Phase 3 failed and the dirty/garbage maps
	// were merged back onto the live fent instead of being committed.
	WasReverted bool

	released bool
}

// Release marks sc as disposed of, exactly once, along one of its two
// valid paths: committed (Phase 6 absorbed its dirty/garbage maps into
// the fent's old_snapshot) or reverted (Phase 3 merged them back). A
// second call is a use-after-dispose bug in the caller and panics rather
// than silently double-releasing a snapshot that may already have been
// superseded by a later sync on the same file.
func (sc *SyncContext) Release(committed bool) {
	if sc.released {
		panic("fent: SyncContext released twice")
	}
	sc.released = true
	sc.WasReverted = !committed
}

// ReplicaResult is the outcome of a single RG PUT/DELETE issued while
// replicating this sync's dirty blocks or manifest.
type ReplicaResult struct {
	Succeeded bool
	Err       error
}

// Snapshot captures a fresh SyncContext from f. The caller must hold f's
// write lock; Snapshot steals dirty_blocks and garbage_blocks off f,
// leaving it with empty maps, and does not itself touch f.syncQueue.
func Snapshot(f *File, isCoordinator bool) *SyncContext {
	sc := &SyncContext{
		FileID:            f.FileID,
		FileVersion:       f.fileVersion,
		VolumeID:          f.volumeID,
		Size:              f.size,
		Mtime:             f.mtime,
		Ctime:             f.ctime,
		Mode:              f.mode,
		Manifest:          f.ManifestSnapshot(),
		DirtyBlocks:       f.dirtyBlocks,
		GarbageBlocks:     f.garbageBlocks,
		turn:              make(chan struct{}, 1),
		IsCoordinatorPath: isCoordinator,
	}

	f.dirtyBlocks = make(map[uint64]DirtyBlock)
	f.garbageBlocks = nil

	return sc
}

// Enqueue appends sc to f's sync_queue (Phase 2: queue for metadata order).
// The caller must hold f's write lock. Returns true if sc is now the head
// of the queue (and therefore clear to proceed to Phase 4 immediately).
func Enqueue(f *File, sc *SyncContext) (isHead bool) {
	f.syncQueue = append(f.syncQueue, sc)
	isHead = len(f.syncQueue) == 1
	if isHead {
		sc.markReady()
	}
	return isHead
}

// WaitTurn blocks until sc reaches the head of its file's sync_queue. Call
// this without holding the fent lock (Phase 3 releases it first).
func (sc *SyncContext) WaitTurn() {
	if cap(sc.turn) == 0 {
		return
	}
	// turn is posted by Enqueue for a context that starts at the head, and
	// otherwise by PopAndWakeNext or Dequeue when its predecessor leaves.
	<-sc.turn
}

// markReady posts sc's turn so a WaitTurn call returns immediately. Used by
// PopAndWakeNext to wake the new head of the queue.
func (sc *SyncContext) markReady() {
	select {
	case sc.turn <- struct{}{}:
	default:
	}
}

// PopAndWakeNext removes sc from the head of f's sync_queue (Phase 6: wake
// next) and posts the new head's turn, if any. The caller must hold f's
// write lock.
func PopAndWakeNext(f *File, sc *SyncContext) {
	if len(f.syncQueue) == 0 || f.syncQueue[0] != sc {
		return
	}
	f.syncQueue = f.syncQueue[1:]
	if len(f.syncQueue) > 0 {
		f.syncQueue[0].markReady()
	}
}

// Dequeue removes sc from f's sync_queue wherever it currently sits —
// used by Phase 3's failure path, where sc may not yet be the head. If sc
// was the head, its successor (if any) is woken exactly as
// PopAndWakeNext would. The caller must hold f's write lock.
func Dequeue(f *File, sc *SyncContext) {
	for i, s := range f.syncQueue {
		if s == sc {
			wasHead := i == 0
			f.syncQueue = append(f.syncQueue[:i], f.syncQueue[i+1:]...)
			if wasHead && len(f.syncQueue) > 0 {
				f.syncQueue[0].markReady()
			}
			return
		}
	}
}

// Revert merges an unreplicated snapshot's dirty blocks back onto the live
// fent (Phase 3 failure path) and marks sc so later phases skip MS commit.
// The caller must hold f's write lock.
func Revert(f *File, sc *SyncContext) {
	for blockID, db := range sc.DirtyBlocks {
		if _, stillPresent := f.dirtyBlocks[blockID]; !stillPresent {
			f.dirtyBlocks[blockID] = db
		}
	}
	f.garbageBlocks = append(f.garbageBlocks, sc.GarbageBlocks...)
	sc.WasReverted = true
}
