package syncpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/syndicate-project/gateway/pkg/coordinator"
	"github.com/syndicate-project/gateway/pkg/fent"
)

// FileLookup resolves a (volumeID, fileID) pair to the in-core entry a
// coordinator RPC should act on. Implemented by whatever owns the fent
// registry (pkg/gateway); syncpipeline only consumes it.
type FileLookup func(volumeID, fileID uint64) (*fent.File, bool)

// SetFileLookup wires the registry Prepare/Truncate/Detach/ReleaseStaged
// use to find the fent they act on. Must be called before the Pipeline is
// mounted as a coordinator.Server's FileHandler.
func (p *Pipeline) SetFileLookup(lookup FileLookup) { p.lookup = lookup }

// Prepare implements coordinator.FileHandler: merge the sender's affected
// blocks into this file's manifest (this gateway is coordinator for it)
// and bump file_version for the merge.
func (p *Pipeline) Prepare(ctx context.Context, volumeID, fileID uint64, fileVersion int64, blocks []coordinator.BlockVersion) (int64, []byte, error) {
	f, ok := p.lookupFile(volumeID, fileID)
	if !ok {
		return 0, nil, fmt.Errorf("syncpipeline: unknown file %d/%d", volumeID, fileID)
	}

	f.Lock()
	defer f.Unlock()

	if f.Version() != fileVersion {
		return 0, nil, coordinator.ErrStale
	}

	for _, b := range blocks {
		current, ok := f.ManifestEntry(b.BlockID)
		if ok && current.BlockVersion >= b.BlockVersion {
			continue
		}
		f.SetManifestEntry(b.BlockID, fent.ManifestEntry{BlockVersion: b.BlockVersion})
	}

	newVersion := f.CommitWrite(f.Size(), time.Now())
	return newVersion, marshalManifest(f.ManifestSnapshot()), nil
}

// Truncate implements coordinator.FileHandler for a remote-initiated
// truncate against this gateway's own copy of the file.
func (p *Pipeline) Truncate(ctx context.Context, volumeID, fileID uint64, fileVersion int64, newSize int64) (int64, error) {
	f, ok := p.lookupFile(volumeID, fileID)
	if !ok {
		return 0, fmt.Errorf("syncpipeline: unknown file %d/%d", volumeID, fileID)
	}

	f.Lock()
	defer f.Unlock()

	if f.Version() != fileVersion {
		return 0, coordinator.ErrStale
	}

	f.Truncate(newSize, p.blockSize, time.Now())
	return f.Version(), nil
}

// Detach implements coordinator.FileHandler: the file is being unlinked.
// Every manifest entry becomes garbage for the next GC sweep and the
// manifest is cleared by truncating to zero.
func (p *Pipeline) Detach(ctx context.Context, volumeID, fileID uint64, fileVersion int64) error {
	f, ok := p.lookupFile(volumeID, fileID)
	if !ok {
		return fmt.Errorf("syncpipeline: unknown file %d/%d", volumeID, fileID)
	}

	f.Lock()
	defer f.Unlock()

	if f.Version() != fileVersion {
		return coordinator.ErrStale
	}

	for blockID, entry := range f.ManifestSnapshot() {
		f.AppendGarbage(blockID, entry.BlockVersion)
	}
	f.Truncate(0, p.blockSize, time.Now())
	return nil
}

// ReleaseStaged implements coordinator.FileHandler. In this design a
// sender only learns its write succeeded once Prepare itself returns, so
// there is nothing left to stage by the time ACCEPTED would arrive; kept
// only so Pipeline satisfies the full FileHandler interface.
func (p *Pipeline) ReleaseStaged(ctx context.Context, volumeID, fileID uint64, blocks []uint64) error {
	return nil
}

func (p *Pipeline) lookupFile(volumeID, fileID uint64) (*fent.File, bool) {
	if p.lookup == nil {
		return nil, false
	}
	return p.lookup(volumeID, fileID)
}

var _ coordinator.FileHandler = (*Pipeline)(nil)
