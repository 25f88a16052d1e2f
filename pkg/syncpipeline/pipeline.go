package syncpipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syndicate-project/gateway/pkg/coordinator"
	"github.com/syndicate-project/gateway/pkg/fent"
	"github.com/syndicate-project/gateway/pkg/future"
	"github.com/syndicate-project/gateway/pkg/gwcache"
	"github.com/syndicate-project/gateway/pkg/metrics"
	"github.com/syndicate-project/gateway/pkg/msclient"
	"github.com/syndicate-project/gateway/pkg/replication"

	"github.com/syndicate-project/gateway/internal/logger"
)

// ErrReplicationFailed is returned when one or more RG PUTs failed and the
// write was rolled back onto the live fent for a future retry.
var ErrReplicationFailed = errors.New("syncpipeline: replication failed, write reverted")

// ErrStale mirrors fent.ErrStale for callers that only import this package.
var ErrStale = fent.ErrStale

// TargetResolver returns the replica gateway IDs a volume's blocks and
// manifest must be pushed to.
type TargetResolver func(volumeID uint64) []uint64

// Pipeline drives fsync for a single gateway process: one instance is
// shared by every open file handle.
type Pipeline struct {
	selfGatewayID uint64

	cache        *gwcache.Cache
	replicaQueue *replication.Queue
	gc           *replication.GC
	msClient     *msclient.Client
	coordClient  *coordinator.Client
	targets      TargetResolver
	metrics      metrics.SyncMetrics
	blockSize    uint32

	// lookup resolves coordinator RPCs to the local fent they act on; set
	// via SetFileLookup once the gateway's registry is constructed.
	lookup FileLookup
}

// New builds a Pipeline. m may be nil, in which case phase timings are not
// recorded.
func New(selfGatewayID uint64, blockSize uint32, cache *gwcache.Cache, replicaQueue *replication.Queue, gc *replication.GC, msClient *msclient.Client, coordClient *coordinator.Client, targets TargetResolver, m metrics.SyncMetrics) *Pipeline {
	return &Pipeline{
		selfGatewayID: selfGatewayID,
		blockSize:     blockSize,
		cache:         cache,
		replicaQueue:  replicaQueue,
		gc:            gc,
		msClient:      msClient,
		coordClient:   coordClient,
		targets:       targets,
		metrics:       m,
	}
}

// Fsync drains f's buffered writes to the cache, replicates them, and
// commits the resulting manifest through the metadata service, serializing
// with any concurrent fsync on the same file. f must be write-locked on
// entry; Fsync always returns with f unlocked.
func (p *Pipeline) Fsync(ctx context.Context, f *fent.File) (Outcome, error) {
	if len(f.BufferedBlocks()) == 0 {
		f.Unlock()
		p.observe(0, "nothing", 0)
		return SyncNothing, nil
	}

	sc, oldBlocks, err := p.beginDataSync(ctx, f)
	if err != nil {
		f.Unlock()
		p.observe(1, "error", 0)
		return SyncNothing, err
	}

	isHead := fent.Enqueue(f, sc)
	f.Unlock()

	if !isHead {
		sc.WaitTurn()
	}

	committed, err := p.endDataSync(ctx, f, sc)
	if err != nil {
		return SyncNothing, err
	}
	if !committed {
		return SyncWaitQueued, nil
	}

	outcome, err := p.metadataSync(ctx, f, sc, oldBlocks)
	if err != nil {
		return outcome, err
	}

	p.wakeNext(f, sc)
	p.scheduleGC(f, sc, oldBlocks)

	return SyncDone, nil
}

// beginDataSync is Phase 1: assign new versions to every buffered block,
// push them to the cache, fold the results into the manifest, and snapshot
// the fent for replication. f must be write-locked on entry and remains
// locked on return (the caller unlocks once sc is queued).
func (p *Pipeline) beginDataSync(ctx context.Context, f *fent.File) (*fent.SyncContext, map[uint64]uint64, error) {
	start := time.Now()
	isCoordinator := f.IsCoordinator(p.selfGatewayID)

	type flushed struct {
		blockID uint64
		version uint64
		fut     *future.Future[gwcache.Result]
	}

	oldBlocks := make(map[uint64]uint64)
	var pending []flushed

	for blockID, bb := range f.BufferedBlocks() {
		newVersion := uint64(1)
		if entry, ok := f.ManifestEntry(blockID); ok {
			newVersion = entry.BlockVersion + 1
			oldBlocks[blockID] = entry.BlockVersion
		}

		key := gwcache.Key{FileID: f.FileID, FileVersion: f.Version(), BlockID: blockID, BlockVersion: newVersion}
		fut, err := p.cache.WriteBlockAsync(ctx, key, bb.Bytes, gwcache.FlagUnshared)
		if err != nil {
			p.observe(1, "error", time.Since(start))
			return nil, nil, fmt.Errorf("syncpipeline: write block %d to cache: %w", blockID, err)
		}

		pending = append(pending, flushed{blockID: blockID, version: newVersion, fut: fut})
		f.SetManifestEntry(blockID, fent.ManifestEntry{BlockVersion: newVersion, WriterGateway: p.selfGatewayID})
	}

	for _, pw := range pending {
		res, err := p.cache.Wait(ctx, pw.fut)
		if err != nil || res.WriteRC != 0 {
			// Undo the manifest bumps for every block in this flush; the
			// buffered writes stay put for a later retry.
			for _, undo := range pending {
				if ov, ok := oldBlocks[undo.blockID]; ok {
					f.SetManifestEntry(undo.blockID, fent.ManifestEntry{BlockVersion: ov})
				}
			}
			p.observe(1, "error", time.Since(start))
			if err == nil {
				err = fmt.Errorf("cache write_rc=%d", res.WriteRC)
			}
			return nil, nil, fmt.Errorf("syncpipeline: flush block %d: %w", pw.blockID, err)
		}
		f.MarkDirty(pw.blockID, pw.version, 0)
	}
	clear(f.BufferedBlocks())

	sc := fent.Snapshot(f, isCoordinator)

	if isCoordinator {
		for _, targetID := range p.targets(f.VolumeID()) {
			fut := p.replicateManifest(ctx, f, sc, targetID)
			sc.ReplicaFutures = append(sc.ReplicaFutures, fut)
		}
	}

	for blockID, db := range sc.DirtyBlocks {
		key := gwcache.Key{FileID: f.FileID, FileVersion: sc.FileVersion, BlockID: blockID, BlockVersion: db.BlockVersion}
		data, rerr := p.readBack(key)
		for _, targetID := range p.targets(f.VolumeID()) {
			if rerr != nil {
				fut := future.New[fent.ReplicaResult]()
				fut.Resolve(fent.ReplicaResult{}, rerr)
				sc.ReplicaFutures = append(sc.ReplicaFutures, fut)
				continue
			}
			sc.ReplicaFutures = append(sc.ReplicaFutures, p.replicateBlock(ctx, sc, blockID, db.BlockVersion, targetID, data))
		}
	}

	p.observe(1, "ok", time.Since(start))
	return sc, oldBlocks, nil
}

// readBack loads a just-flushed block back out of the cache so it can be
// pushed to the replica gateways.
func (p *Pipeline) readBack(key gwcache.Key) ([]byte, error) {
	f, err := p.cache.OpenBlock(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.cache.ReadBlock(key, f)
}

// endDataSync is Phase 3: release the fent lock, wait for every replica
// future, and revert on failure. Returns committed=false only when the
// caller should stop and let the queue drain sc on its own (SyncWaitQueued
// is not reachable from here in the current design — WaitTurn already
// blocked until sc was head — but the boolean keeps the phase boundary
// explicit for future queue-depth backpressure).
func (p *Pipeline) endDataSync(ctx context.Context, f *fent.File, sc *fent.SyncContext) (bool, error) {
	start := time.Now()

	var failed error
	for _, fut := range sc.ReplicaFutures {
		res, err := fut.Wait(ctx)
		if err != nil {
			failed = err
			continue
		}
		if !res.Succeeded {
			failed = res.Err
		}
	}

	if failed != nil {
		f.Lock()
		fent.Revert(f, sc)
		fent.Dequeue(f, sc)
		f.Unlock()
		sc.Release(false)
		p.observe(3, "error", time.Since(start))
		return false, fmt.Errorf("%w: %v", ErrReplicationFailed, failed)
	}

	p.observe(3, "ok", time.Since(start))
	return true, nil
}

// metadataSync is Phase 4: commit through the MS directly if this gateway
// is the coordinator, or through pkg/coordinator otherwise, taking over
// coordinatorship on an unreachable or ceding coordinator.
func (p *Pipeline) metadataSync(ctx context.Context, f *fent.File, sc *fent.SyncContext, oldBlocks map[uint64]uint64) (Outcome, error) {
	start := time.Now()
	f.Lock()

	if f.Version() != sc.FileVersion {
		// An intervening truncate already published a newer file_version;
		// its own metadata commit supersedes this one.
		f.Unlock()
		p.observe(4, "superseded", time.Since(start))
		return SyncDone, nil
	}

	affected := make([]uint64, 0, len(sc.DirtyBlocks))
	for blockID := range sc.DirtyBlocks {
		affected = append(affected, blockID)
	}

	if f.IsCoordinator(p.selfGatewayID) {
		size := f.Size()
		f.Unlock()
		_, err := p.msClient.UpdateWrite(ctx, msclient.UpdateWriteRequest{
			VolumeID:       sc.VolumeID,
			FileID:         sc.FileID,
			Size:           size,
			Mtime:          time.Now().Unix(),
			AffectedBlocks: affected,
		})
		if err != nil {
			p.observe(4, "error", time.Since(start))
			return SyncDone, fmt.Errorf("syncpipeline: update_write: %w", err)
		}
		p.commitLocalVersion(f, sc)
		p.observe(4, "ok", time.Since(start))
		return SyncDone, nil
	}

	coordinatorID := f.CoordinatorID()
	blocks := make([]coordinator.BlockVersion, 0, len(affected))
	for _, blockID := range affected {
		if entry, ok := f.ManifestEntry(blockID); ok {
			blocks = append(blocks, coordinator.BlockVersion{BlockID: blockID, BlockVersion: entry.BlockVersion})
		}
	}
	f.Unlock()

	reply, err := p.coordClient.Send(ctx, coordinatorID, &coordinator.WriteMsg{
		Op:             coordinator.OpPrepare,
		VolumeID:       sc.VolumeID,
		FileID:         sc.FileID,
		FileVersion:    sc.FileVersion,
		AffectedBlocks: blocks,
	})

	switch {
	case err == nil:
		p.adoptRemoteVersion(f, reply)
		p.observe(4, "ok", time.Since(start))
		return SyncDone, nil

	case errors.Is(err, coordinator.ErrStale):
		f.Lock()
		f.MarkStale()
		f.Unlock()
		p.observe(4, "stale", time.Since(start))
		return SyncDone, fent.ErrStale

	case coordinator.ShouldBecomeCoordinator(err):
		f.Lock()
		f.SetCoordinatorID(p.selfGatewayID)
		f.Unlock()

		for _, targetID := range p.targets(sc.VolumeID) {
			fut := p.replicateManifest(ctx, f, sc, targetID)
			if _, werr := fut.Wait(ctx); werr != nil {
				p.observe(4, "error", time.Since(start))
				return SyncDone, fmt.Errorf("syncpipeline: republish manifest after takeover: %w", werr)
			}
		}

		_, uerr := p.msClient.UpdateWrite(ctx, msclient.UpdateWriteRequest{
			VolumeID:       sc.VolumeID,
			FileID:         sc.FileID,
			Size:           sc.Size,
			Mtime:          sc.Mtime.Unix(),
			AffectedBlocks: affected,
		})
		if uerr != nil {
			p.observe(4, "error", time.Since(start))
			return SyncDone, fmt.Errorf("syncpipeline: update_write after takeover: %w", uerr)
		}
		p.commitLocalVersion(f, sc)
		p.observe(4, "ok_takeover", time.Since(start))
		return SyncDone, nil

	default:
		p.observe(4, "error", time.Since(start))
		logger.Warn("metadata sync failed", "file_id", sc.FileID, "err", err)
		return SyncDone, err
	}
}

// commitLocalVersion bumps f's own file_version after this gateway
// committed the write directly to the MS, then migrates this sync's
// cache entries into the new generation's directory.
func (p *Pipeline) commitLocalVersion(f *fent.File, sc *fent.SyncContext) {
	f.Lock()
	oldVersion := f.Version()
	newVersion := f.CommitWrite(f.Size(), time.Now())
	f.BumpWriteNonce()
	f.Unlock()

	if err := p.cache.ReversionFile(sc.FileID, oldVersion, newVersion); err != nil {
		logger.Warn("cache reversion failed", "file_id", sc.FileID, "old_version", oldVersion, "new_version", newVersion, "err", err)
	}
}

// adoptRemoteVersion installs the file_version a remote coordinator
// assigned after merging this write with any concurrent ones.
func (p *Pipeline) adoptRemoteVersion(f *fent.File, reply *coordinator.WriteReply) {
	f.Lock()
	oldVersion := f.Version()
	newVersion := reply.NewFileVersion
	f.AdoptVersion(newVersion, time.Now())
	f.BumpWriteNonce()
	f.Unlock()

	if oldVersion == newVersion {
		return
	}
	if err := p.cache.ReversionFile(f.FileID, oldVersion, newVersion); err != nil {
		logger.Warn("cache reversion failed", "file_id", f.FileID, "old_version", oldVersion, "new_version", newVersion, "err", err)
	}
}

// wakeNext is Phase 6: pop sc off the queue, wake its successor, and
// absorb this sync's dirty/garbage state into old_snapshot.
func (p *Pipeline) wakeNext(f *fent.File, sc *fent.SyncContext) {
	f.Lock()
	fent.PopAndWakeNext(f, sc)
	f.ClearGarbage()
	f.SetOldSnapshot(&fent.Snapshot{
		FileVersion: f.Version(),
		Size:        f.Size(),
		Mtime:       f.Mtime(),
		Manifest:    f.ManifestSnapshot(),
	})
	f.Unlock()
	sc.Release(true)
}

// scheduleGC is Phase 5: hand the superseded blocks and, on the
// coordinator path, the superseded manifest to the replica client's GC
// continuation, one job per replica target.
func (p *Pipeline) scheduleGC(f *fent.File, sc *fent.SyncContext, oldBlocks map[uint64]uint64) {
	if p.gc == nil || len(oldBlocks) == 0 {
		return
	}

	var oldManifest []byte
	if sc.IsCoordinatorPath {
		oldManifest = marshalManifest(sc.Manifest)
	}

	for _, targetID := range p.targets(sc.VolumeID) {
		p.gc.Submit(replication.Job{
			File:        replication.FileSnapshot{VolumeID: sc.VolumeID, FileID: sc.FileID, FileVersion: sc.FileVersion},
			TargetID:    targetID,
			OldBlocks:   oldBlocks,
			OldManifest: oldManifest,
		})
	}
}

func (p *Pipeline) replicateManifest(ctx context.Context, f *fent.File, sc *fent.SyncContext, targetID uint64) *future.Future[fent.ReplicaResult] {
	repFut := future.New[replication.Result]()
	req := &replication.Context{
		Kind:     replication.KindPutManifest,
		File:     replication.FileSnapshot{VolumeID: sc.VolumeID, FileID: sc.FileID, FileVersion: sc.FileVersion},
		TargetID: targetID,
		Payload:  marshalManifest(sc.Manifest),
		Future:   repFut,
	}
	if err := p.replicaQueue.Enqueue(req); err != nil {
		logger.Warn("manifest replication enqueue failed", "file_id", sc.FileID, "target", targetID, "err", err)
	}
	return bridgeReplicaFuture(repFut)
}

func (p *Pipeline) replicateBlock(ctx context.Context, sc *fent.SyncContext, blockID, blockVersion, targetID uint64, data []byte) *future.Future[fent.ReplicaResult] {
	repFut := future.New[replication.Result]()
	req := &replication.Context{
		Kind:     replication.KindPutBlock,
		File:     replication.FileSnapshot{VolumeID: sc.VolumeID, FileID: sc.FileID, FileVersion: sc.FileVersion},
		BlockID:  blockID,
		TargetID: targetID,
		Payload:  data,
		Future:   repFut,
	}
	if err := p.replicaQueue.Enqueue(req); err != nil {
		logger.Warn("block replication enqueue failed", "file_id", sc.FileID, "block_id", blockID, "target", targetID, "err", err)
	}
	return bridgeReplicaFuture(repFut)
}

// bridgeReplicaFuture adapts a replication.Queue future into the
// fent.ReplicaResult shape a SyncContext accumulates, so Phase 3 can wait
// on cache and replica completions through a single future type.
func bridgeReplicaFuture(repFut *future.Future[replication.Result]) *future.Future[fent.ReplicaResult] {
	out := future.New[fent.ReplicaResult]()
	go func() {
		res, err := repFut.Wait(context.Background())
		out.Resolve(fent.ReplicaResult{Succeeded: res.Succeeded, Err: res.Err}, err)
	}()
	return out
}

func (p *Pipeline) observe(phase int, outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObservePhase(phase, outcome, d)
	}
}
