package gateway

import (
	"sync"

	"github.com/syndicate-project/gateway/pkg/fent"
)

// fileRegistry is the gateway's in-core inode table: every fent.File this
// process currently holds open, keyed by FileID. It backs
// syncpipeline.FileLookup, the coordinator's own file lookups, and lookup
// during lease break / vacuum reconciliation — every consumer that needs
// "the live File for this ID" rather than a fresh MS round trip.
type fileRegistry struct {
	mu    sync.RWMutex
	files map[uint64]*fent.File
}

func newFileRegistry() *fileRegistry {
	return &fileRegistry{files: make(map[uint64]*fent.File)}
}

// Lookup implements syncpipeline.FileLookup and coordinator.FileHandler's
// lookup needs. volumeID is checked against the held file's own VolumeID
// rather than used to index, since one gateway process serves exactly one
// volume.
func (r *fileRegistry) Lookup(volumeID, fileID uint64) (*fent.File, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[fileID]
	if !ok || f.VolumeID() != volumeID {
		return nil, false
	}
	return f, true
}

// Register installs f under its own FileID, replacing any prior entry
// (e.g. a stale handle from before a restart-time reload).
func (r *fileRegistry) Register(f *fent.File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.FileID] = f
}

// Forget removes fileID, called on unlink/detach once no open handle
// references it anymore.
func (r *fileRegistry) Forget(fileID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, fileID)
}

// Len reports the number of files currently held open, for the /stats
// surface.
func (r *fileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}
