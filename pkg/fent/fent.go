// Package fent implements the in-core file entry (the gateway's inode): the
// manifest, buffered/dirty/garbage block bookkeeping, and the per-file
// invariants that the sync pipeline, cache, and replication client all read
// and mutate under a single reader-writer lock.
package fent

import (
	"errors"
	"sync"
	"time"
)

// ErrStale is surfaced to callers when a fent has been marked read-stale
// following an ESTALE response from the metadata service; the caller must
// reload the manifest before proceeding.
var ErrStale = errors.New("fent: manifest is stale, reload required")

// BlockKey identifies one cache entry: the four-integer key in lexicographic
// order (file_id, file_version, block_id, block_version).
type BlockKey struct {
	FileID       uint64
	FileVersion  int64
	BlockID      uint64
	BlockVersion uint64
}

// Less orders two keys lexicographically, matching the on-disk cache path
// ordering.
func (k BlockKey) Less(o BlockKey) bool {
	if k.FileID != o.FileID {
		return k.FileID < o.FileID
	}
	if k.FileVersion != o.FileVersion {
		return k.FileVersion < o.FileVersion
	}
	if k.BlockID != o.BlockID {
		return k.BlockID < o.BlockID
	}
	return k.BlockVersion < o.BlockVersion
}

// ManifestEntry names the current version of one block and which gateway
// last wrote it.
type ManifestEntry struct {
	BlockVersion  uint64
	WriterGateway uint64
}

// BufferedBlock is an unflushed write sitting in memory.
type BufferedBlock struct {
	Bytes []byte
	Dirty bool
}

// DirtyBlock has been flushed to the local cache but not yet replicated to
// an RG.
type DirtyBlock struct {
	BlockVersion uint64
	CacheFD      uintptr
}

// GarbageBlock is a superseded (block_id, block_version) pair awaiting GC;
// per invariant I4 it is only enqueued once the prior version has been
// replicated at least once.
type GarbageBlock struct {
	BlockID      uint64
	BlockVersion uint64
}

// Snapshot is the frozen attribute set representing the last successfully
// replicated state of a file (fent.old_snapshot).
type Snapshot struct {
	FileVersion int64
	Size        int64
	Mtime       time.Time
	Manifest    map[uint64]ManifestEntry
}

// File is the in-core inode. Every field below FileID is guarded by mu;
// callers must hold the appropriate lock before touching manifest, block
// maps, or POSIX attributes.
type File struct {
	FileID uint64 // stable identity, immutable after creation

	mu sync.RWMutex

	fileVersion    int64
	coordinatorID  uint64
	ownerID        uint64
	volumeID       uint64
	mode           uint32
	size           int64
	mtime          time.Time
	ctime          time.Time
	writeNonce     uint64
	manifest       map[uint64]ManifestEntry
	bufferedBlocks map[uint64]*BufferedBlock
	dirtyBlocks    map[uint64]DirtyBlock
	garbageBlocks  []GarbageBlock
	oldSnapshot    *Snapshot
	syncQueue      []*SyncContext
	stale          bool
}

// New constructs a File freshly returned from an MS create RPC (open
// O_CREAT or mkdir). The coordinator defaults to self, since the creating
// gateway is authoritative until told otherwise.
func New(fileID uint64, ownerID, volumeID, selfGatewayID uint64, mode uint32) *File {
	now := time.Now()
	return &File{
		FileID:         fileID,
		coordinatorID:  selfGatewayID,
		ownerID:        ownerID,
		volumeID:       volumeID,
		mode:           mode,
		mtime:          now,
		ctime:          now,
		manifest:       make(map[uint64]ManifestEntry),
		bufferedBlocks: make(map[uint64]*BufferedBlock),
		dirtyBlocks:    make(map[uint64]DirtyBlock),
	}
}

// Lock / Unlock / RLock / RUnlock expose the per-file reader-writer lock
// directly: fsync_locked and friends expect to already hold it on entry,
// so the pipeline packages take the lock explicitly rather than through
// accessor methods that would re-enter it.

func (f *File) Lock()    { f.mu.Lock() }
func (f *File) Unlock()  { f.mu.Unlock() }
func (f *File) RLock()   { f.mu.RLock() }
func (f *File) RUnlock() { f.mu.RUnlock() }

// Version returns the current file_version. Caller must hold at least a
// read lock.
func (f *File) Version() int64 { return f.fileVersion }

// CoordinatorID returns the gateway currently authoritative for writes.
func (f *File) CoordinatorID() uint64 { return f.coordinatorID }

// VolumeID returns the volume this file belongs to, immutable after
// creation.
func (f *File) VolumeID() uint64 { return f.volumeID }

// SetCoordinatorID updates coordinator_id, e.g. on PREPARE acceptance.
func (f *File) SetCoordinatorID(id uint64) { f.coordinatorID = id }

// IsCoordinator reports invariant I3: whether selfGatewayID is currently
// authoritative for this file.
func (f *File) IsCoordinator(selfGatewayID uint64) bool {
	return f.coordinatorID == selfGatewayID
}

// Size returns the current logical size.
func (f *File) Size() int64 { return f.size }

// WriteNonce returns the monotonically increasing per-successful-update
// counter (invariant I5).
func (f *File) WriteNonce() uint64 { return f.writeNonce }

// BumpWriteNonce increments write_nonce on a successful MS metadata update.
func (f *File) BumpWriteNonce() { f.writeNonce++ }

// Stale reports whether the fent has been marked read-stale following an
// ESTALE response.
func (f *File) Stale() bool { return f.stale }

// MarkStale flags the fent for reload before its manifest is next trusted.
func (f *File) MarkStale() { f.stale = true }

// ClearStale clears the stale flag after a successful manifest reload.
func (f *File) ClearStale() { f.stale = false }

// ManifestEntry returns the current manifest entry for blockID, if any.
func (f *File) ManifestEntry(blockID uint64) (ManifestEntry, bool) {
	e, ok := f.manifest[blockID]
	return e, ok
}

// SetManifestEntry records the newest known version of a block, maintaining
// invariant I2 (manifest consistent with dirty_blocks).
func (f *File) SetManifestEntry(blockID uint64, entry ManifestEntry) {
	f.manifest[blockID] = entry
}

// ManifestSnapshot returns a shallow copy of the current manifest, safe to
// retain after the lock is released.
func (f *File) ManifestSnapshot() map[uint64]ManifestEntry {
	out := make(map[uint64]ManifestEntry, len(f.manifest))
	for k, v := range f.manifest {
		out[k] = v
	}
	return out
}

// BufferWrite grows bufferred_blocks with an in-memory write awaiting flush.
func (f *File) BufferWrite(blockID uint64, data []byte) {
	f.bufferedBlocks[blockID] = &BufferedBlock{Bytes: data, Dirty: true}
}

// BufferedBlocks returns the current buffered-block map directly; callers
// must hold the write lock for the duration of any mutation.
func (f *File) BufferedBlocks() map[uint64]*BufferedBlock {
	return f.bufferedBlocks
}

// DirtyBlocks returns the current dirty-block map.
func (f *File) DirtyBlocks() map[uint64]DirtyBlock {
	return f.dirtyBlocks
}

// MarkDirty moves a block from bufferred_blocks to dirty_blocks once it has
// been flushed to the local cache, satisfying invariant I1.
func (f *File) MarkDirty(blockID uint64, version uint64, cacheFD uintptr) {
	delete(f.bufferedBlocks, blockID)
	f.dirtyBlocks[blockID] = DirtyBlock{BlockVersion: version, CacheFD: cacheFD}
}

// GarbageBlocks returns the blocks awaiting GC.
func (f *File) GarbageBlocks() []GarbageBlock {
	return f.garbageBlocks
}

// AppendGarbage records a superseded block version as eligible for GC. Per
// invariant I4 callers must only call this once the superseded version has
// been replicated at least once.
func (f *File) AppendGarbage(blockID, version uint64) {
	f.garbageBlocks = append(f.garbageBlocks, GarbageBlock{BlockID: blockID, BlockVersion: version})
}

// ClearGarbage empties garbage_blocks, called after Phase 6 of fsync_locked
// once the GC background task has taken ownership of the prior list.
func (f *File) ClearGarbage() {
	f.garbageBlocks = nil
}

// OldSnapshot returns the last successfully replicated state, or nil if the
// file has never been synced.
func (f *File) OldSnapshot() *Snapshot { return f.oldSnapshot }

// SetOldSnapshot records the new last-replicated state after a sync
// completes.
func (f *File) SetOldSnapshot(s *Snapshot) { f.oldSnapshot = s }

// Truncate bumps file_version and reshapes the manifest to the given size,
// discarding manifest entries for blocks beyond the new size's last block.
func (f *File) Truncate(newSize int64, blockSize uint32, now time.Time) {
	f.fileVersion++
	f.size = newSize
	f.mtime = now
	f.ctime = now

	if blockSize == 0 {
		return
	}
	lastBlock := uint64(0)
	if newSize > 0 {
		lastBlock = uint64((newSize - 1) / int64(blockSize))
	}
	for blockID := range f.manifest {
		if newSize == 0 || blockID > lastBlock {
			delete(f.manifest, blockID)
		}
	}
}

// CommitWrite bumps file_version and POSIX size/mtime/ctime after a
// successful metadata commit issued by this gateway. Returns the new
// version, which the caller hands to gwcache.Cache.ReversionFile to
// migrate this sync's blocks into the new generation's cache directory.
func (f *File) CommitWrite(newSize int64, now time.Time) int64 {
	f.fileVersion++
	f.size = newSize
	f.mtime = now
	f.ctime = now
	return f.fileVersion
}

// AdoptVersion installs a file_version assigned by a remote coordinator,
// which may be more than one generation ahead if it merged concurrent
// writers' blocks before replying.
func (f *File) AdoptVersion(newVersion int64, now time.Time) {
	f.fileVersion = newVersion
	f.mtime = now
	f.ctime = now
}

// SetAttrs applies a metadata-only RPC result (rename/chmod/utime) to the
// fent's POSIX attributes.
func (f *File) SetAttrs(mode *uint32, mtime, ctime *time.Time) {
	if mode != nil {
		f.mode = *mode
	}
	if mtime != nil {
		f.mtime = *mtime
	}
	if ctime != nil {
		f.ctime = *ctime
	}
}

// Mode, Mtime, Ctime, OwnerID expose the remaining POSIX/identity attributes
// read by the metadata and replication paths.

func (f *File) Mode() uint32     { return f.mode }
func (f *File) Mtime() time.Time { return f.mtime }
func (f *File) Ctime() time.Time { return f.ctime }
func (f *File) OwnerID() uint64  { return f.ownerID }
