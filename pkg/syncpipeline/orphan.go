package syncpipeline

import (
	"context"
	"fmt"

	"github.com/syndicate-project/gateway/pkg/future"
	"github.com/syndicate-project/gateway/pkg/gwcache"
	"github.com/syndicate-project/gateway/pkg/replication"
)

// ReplicateOrphan implements replication.OrphanReplicator: re-push a write
// the MS committed but that a crash kept from ever reaching its target,
// using the cache contents that are still on disk under this file's
// current generation.
func (p *Pipeline) ReplicateOrphan(ctx context.Context, e replication.VacuumLogEntry) error {
	f, ok := p.lookupFile(e.File.VolumeID, e.File.FileID)
	if !ok {
		return fmt.Errorf("syncpipeline: unknown file %d/%d", e.File.VolumeID, e.File.FileID)
	}

	f.RLock()
	manifest := f.ManifestSnapshot()
	f.RUnlock()

	if e.IsManifest {
		return p.sendOrphan(ctx, replication.KindPutManifest, e.File, e.TargetID, 0, marshalManifest(manifest))
	}

	entry, ok := manifest[e.BlockID]
	if !ok {
		return fmt.Errorf("syncpipeline: block %d no longer in manifest, nothing to replicate", e.BlockID)
	}

	key := gwcache.Key{FileID: e.File.FileID, FileVersion: e.File.FileVersion, BlockID: e.BlockID, BlockVersion: entry.BlockVersion}
	data, err := p.readBack(key)
	if err != nil {
		return fmt.Errorf("syncpipeline: read orphaned block %d from cache: %w", e.BlockID, err)
	}

	return p.sendOrphan(ctx, replication.KindPutBlock, e.File, e.TargetID, e.BlockID, data)
}

func (p *Pipeline) sendOrphan(ctx context.Context, kind replication.Kind, file replication.FileSnapshot, targetID, blockID uint64, payload []byte) error {
	fut := future.New[replication.Result]()
	req := &replication.Context{
		Kind:     kind,
		File:     file,
		BlockID:  blockID,
		TargetID: targetID,
		Payload:  payload,
		Future:   fut,
	}
	if err := p.replicaQueue.Enqueue(req); err != nil {
		return err
	}
	res, err := fut.Wait(ctx)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return res.Err
	}
	return nil
}

var _ replication.OrphanReplicator = (*Pipeline)(nil)
