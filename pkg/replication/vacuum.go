package replication

import (
	"context"
	"sync"
	"time"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/future"
	"github.com/syndicate-project/gateway/pkg/metrics"
)

// VacuumKind distinguishes the two request shapes the vacuumer handles.
type VacuumKind int

const (
	// KindLogEntry is a deferred DELETE: GC already ran, a delete failed
	// or was vetoed, and the MS vacuum log entry is still present.
	KindLogEntry VacuumKind = iota
	// KindOrphanedWrite is a write the MS committed but whose block or
	// manifest replication never completed (discovered from the vacuum
	// log on startup, not from a live GC failure). Reconciling it means
	// replicating the write first, then GC-ing whatever it superseded.
	KindOrphanedWrite
)

// VacuumLogEntry is one outstanding obligation recorded at the MS: a
// block or manifest replica that still needs deleting from some target
// (KindLogEntry), or a write that never finished replicating at all
// (KindOrphanedWrite).
type VacuumLogEntry struct {
	Kind       VacuumKind
	File       FileSnapshot
	BlockID    uint64 // zero when IsManifest
	IsManifest bool
	TargetID   uint64
}

// VacuumLogStore is the MS-side persistence for vacuum log entries. A
// gateway restart calls ListPending once at startup to pick up whatever
// a crash left mid-GC; ClearEntry runs once a deferred delete finally
// succeeds.
type VacuumLogStore interface {
	ListPending(ctx context.Context) ([]VacuumLogEntry, error)
	ClearEntry(ctx context.Context, e VacuumLogEntry) error
}

// OrphanReplicator re-runs replication for a write the MS committed but
// that never finished reaching its RGs, as discovered from a
// KindOrphanedWrite vacuum log entry. Implemented by the sync pipeline,
// which alone has access to the cached block bytes; the vacuumer itself
// only orchestrates retries and never reads cache contents.
type OrphanReplicator interface {
	ReplicateOrphan(ctx context.Context, e VacuumLogEntry) error
}

// Vacuumer retries GC work the inline path couldn't finish: blocks the
// driver vetoed (DRIVER_NOT_GARBAGE), and deletes that failed outright.
// It holds a pending set in memory, swaps it into a private working set
// each tick so new failures recorded mid-run aren't lost, and persists
// nothing itself — durability comes from the MS vacuum log, replayed via
// VacuumLogStore on Start.
type Vacuumer struct {
	queue  *Queue
	store  VacuumLogStore
	orphan OrphanReplicator
	freq   time.Duration
	m      metrics.ReplicationMetrics

	mu      sync.Mutex
	pending []VacuumLogEntry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewVacuumer builds a Vacuumer. store may be nil, in which case no
// startup replay happens and cleared entries are only dropped from the
// in-memory pending set. orphan may be nil; KindOrphanedWrite entries are
// then left pending indefinitely (logged once per reconcile tick) rather
// than silently dropped.
func NewVacuumer(queue *Queue, store VacuumLogStore, orphan OrphanReplicator, freq time.Duration, m metrics.ReplicationMetrics) *Vacuumer {
	if freq <= 0 {
		freq = time.Minute
	}
	return &Vacuumer{
		queue:  queue,
		store:  store,
		orphan: orphan,
		freq:   freq,
		m:      m,
		stopCh: make(chan struct{}),
	}
}

// RecordVetoedBlock records a block the driver claimed responsibility
// for instead of allowing inline GC.
func (v *Vacuumer) RecordVetoedBlock(f FileSnapshot, blockID, targetID uint64) {
	v.record(VacuumLogEntry{File: f, BlockID: blockID, TargetID: targetID})
}

// RecordFailedDelete records a block DELETE that failed inline.
func (v *Vacuumer) RecordFailedDelete(f FileSnapshot, blockID, targetID uint64) {
	v.record(VacuumLogEntry{File: f, BlockID: blockID, TargetID: targetID})
}

// RecordFailedManifestDelete records a manifest DELETE that failed inline.
func (v *Vacuumer) RecordFailedManifestDelete(f FileSnapshot, targetID uint64) {
	v.record(VacuumLogEntry{File: f, IsManifest: true, TargetID: targetID})
}

func (v *Vacuumer) record(e VacuumLogEntry) {
	v.mu.Lock()
	v.pending = append(v.pending, e)
	v.mu.Unlock()
}

// Start replays any vacuum log entries left behind by a prior crash,
// then runs the retry loop until Stop is called.
func (v *Vacuumer) Start(ctx context.Context) error {
	if v.store != nil {
		entries, err := v.store.ListPending(ctx)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			logger.Info("vacuumer replaying pending log", "entries", len(entries))
			v.mu.Lock()
			v.pending = append(v.pending, entries...)
			v.mu.Unlock()
		}
	}

	v.wg.Add(1)
	go v.run(ctx)
	return nil
}

// Stop signals the retry loop to exit and waits for it.
func (v *Vacuumer) Stop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
	v.wg.Wait()
}

// Trigger runs one reconcile pass immediately, for an operator that does
// not want to wait out freq. Safe to call concurrently with the
// background retry loop; reconcile's own pending-set swap already
// tolerates that.
func (v *Vacuumer) Trigger(ctx context.Context) {
	v.reconcile(ctx)
}

// Pending returns the number of vacuum log entries currently awaiting
// retry, for the operator surface's /stats endpoint.
func (v *Vacuumer) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

func (v *Vacuumer) run(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.freq)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.reconcile(ctx)
		}
	}
}

// reconcile swaps the pending set into a working copy so entries
// recorded while this tick runs land in the next tick instead of being
// lost to a concurrent slice mutation, then retries each one.
func (v *Vacuumer) reconcile(ctx context.Context) {
	v.mu.Lock()
	working := v.pending
	v.pending = nil
	v.mu.Unlock()

	if len(working) == 0 {
		return
	}

	logger.Info("vacuumer reconciling", "entries", len(working))
	reclaimed := 0

	for _, e := range working {
		e := e

		if e.Kind == KindOrphanedWrite {
			if v.orphan == nil {
				logger.Warn("vacuumer has no orphan replicator configured, leaving write pending",
					"file_id", e.File.FileID)
				v.record(e)
				continue
			}
			if err := v.orphan.ReplicateOrphan(ctx, e); err != nil {
				logger.Warn("vacuumer orphan replication failed", "file_id", e.File.FileID, "error", err)
				v.record(e)
				continue
			}
			reclaimed++
			if v.store != nil {
				if err := v.store.ClearEntry(ctx, e); err != nil {
					logger.Warn("vacuumer failed clearing log entry", "file_id", e.File.FileID, "error", err)
				}
			}
			continue
		}

		result := future.New[Result]()
		var reqCtx *Context
		if e.IsManifest {
			reqCtx = &Context{Kind: KindDeleteManifest, File: e.File, TargetID: e.TargetID, Future: result}
		} else {
			reqCtx = &Context{Kind: KindDeleteBlock, File: e.File, BlockID: e.BlockID, TargetID: e.TargetID, Future: result}
		}

		if err := v.queue.Enqueue(reqCtx); err != nil {
			v.record(e)
			continue
		}

		r, err := result.Wait(ctx)
		if err != nil || !r.Succeeded {
			v.record(e)
			continue
		}

		reclaimed++
		if v.store != nil {
			if err := v.store.ClearEntry(ctx, e); err != nil {
				logger.Warn("vacuumer failed clearing log entry", "file_id", e.File.FileID, "error", err)
			}
		}
	}

	if v.m != nil {
		v.m.RecordVacuumRun(reclaimed, 0)
	}
}
