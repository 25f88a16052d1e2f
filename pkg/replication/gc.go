package replication

import (
	"sync"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/future"
)

// VetoFunc lets the driver layer claim responsibility for a block that
// would otherwise be garbage-collected immediately (DRIVER_NOT_GARBAGE).
// A block the driver vetoes is handed to the vacuumer instead of deleted
// inline.
type VetoFunc func(volumeID, fileID, blockID uint64) bool

// Job is what Phase 5 of a completed sync hands to the replica client:
// the old (block_id -> block_version) pairs superseded by this sync, and,
// if the coordinator path was taken, the old manifest bytes. Completing
// a Job is a two-step continuation: every block DELETE must succeed
// (or be vetoed) before the manifest DELETE is issued, and the manifest DELETE must
// finish before the MS vacuum log entry for this file version is
// cleared.
type Job struct {
	File        FileSnapshot
	TargetID    uint64
	OldBlocks   map[uint64]uint64 // block_id -> old block_version
	OldManifest []byte            // nil unless this was the coordinator path

	// OnVacuumLogClear runs once the manifest delete (or, if there was no
	// manifest to delete, the last block delete) has completed
	// successfully. It should remove this file version's vacuum log
	// entry from the MS; its absence is what lets the vacuumer rediscover
	// and retry a GC a crash interrupted mid-flight.
	OnVacuumLogClear func()
}

// GC drives Job completions through a Queue, applying veto and handing
// vetoed blocks to a Vacuumer for later reconciliation instead of
// deleting them inline.
type GC struct {
	queue    *Queue
	veto     VetoFunc
	vacuumer *Vacuumer
}

// NewGC builds a GC. veto and vacuumer may both be nil (no driver veto,
// nothing vetoed is ever expected).
func NewGC(queue *Queue, veto VetoFunc, vacuumer *Vacuumer) *GC {
	return &GC{queue: queue, veto: veto, vacuumer: vacuumer}
}

// Submit starts Job's block deletes, chains the manifest delete behind
// them, and chains OnVacuumLogClear behind that.
func (g *GC) Submit(job Job) {
	total := len(job.OldBlocks)
	if total == 0 {
		g.finishManifest(job)
		return
	}

	var (
		mu        sync.Mutex
		remaining = total
		anyFailed bool
	)

	for blockID := range job.OldBlocks {
		blockID := blockID
		if g.veto != nil && g.vacuumer != nil && g.veto(job.File.VolumeID, job.File.FileID, blockID) {
			g.vacuumer.RecordVetoedBlock(job.File, blockID, job.TargetID)
			mu.Lock()
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				g.afterBlocks(job, anyFailed)
			}
			continue
		}

		ctx := &Context{
			Kind:     KindDeleteBlock,
			File:     job.File,
			BlockID:  blockID,
			TargetID: job.TargetID,
			Future:   future.New[Result](),
		}
		ctx.OnComplete = func(r Result) {
			mu.Lock()
			if r.Err != nil {
				anyFailed = true
				logger.Warn("gc block delete failed, deferring to vacuumer",
					"file_id", job.File.FileID, "block_id", blockID, "error", r.Err)
				if g.vacuumer != nil {
					g.vacuumer.RecordFailedDelete(job.File, blockID, job.TargetID)
				}
			}
			remaining--
			done := remaining == 0
			failed := anyFailed
			mu.Unlock()
			if done {
				g.afterBlocks(job, failed)
			}
		}
		if err := g.queue.Enqueue(ctx); err != nil && g.vacuumer != nil {
			g.vacuumer.RecordFailedDelete(job.File, blockID, job.TargetID)
		}
	}
}

func (g *GC) afterBlocks(job Job, blocksFailed bool) {
	if blocksFailed {
		// The vacuumer now owns retrying the failed blocks. The manifest
		// delete and OnVacuumLogClear are skipped, so the MS vacuum log
		// entry stays in place for a restarted vacuumer to rediscover.
		logger.Warn("some gc block deletes failed, vacuumer will retry",
			"file_id", job.File.FileID)
		return
	}
	g.finishManifest(job)
}

func (g *GC) finishManifest(job Job) {
	if job.OldManifest == nil {
		if job.OnVacuumLogClear != nil {
			job.OnVacuumLogClear()
		}
		return
	}

	ctx := &Context{
		Kind:     KindDeleteManifest,
		File:     job.File,
		TargetID: job.TargetID,
		Future:   future.New[Result](),
	}
	ctx.OnComplete = func(r Result) {
		if r.Err != nil {
			logger.Warn("gc manifest delete failed, deferring to vacuumer",
				"file_id", job.File.FileID, "error", r.Err)
			if g.vacuumer != nil {
				g.vacuumer.RecordFailedManifestDelete(job.File, job.TargetID)
			}
			return
		}
		if job.OnVacuumLogClear != nil {
			job.OnVacuumLogClear()
		}
	}
	if err := g.queue.Enqueue(ctx); err != nil && g.vacuumer != nil {
		g.vacuumer.RecordFailedManifestDelete(job.File, job.TargetID)
	}
}
