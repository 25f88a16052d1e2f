// Package gwcache implements the gateway's on-disk block cache: a
// content-addressed key-value store with asynchronous writeback, a single
// worker goroutine, and soft/hard-limit LRU eviction, backed by a
// badger-indexed directory tree on disk.
package gwcache

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Key identifies one cache entry: the four-integer key in lexicographic
// order (file_id, file_version, block_id, block_version). Mirrors
// fent.BlockKey so callers can convert freely between the two packages
// without an import cycle.
type Key struct {
	FileID       uint64
	FileVersion  int64
	BlockID      uint64
	BlockVersion uint64
}

// String renders the key in the same order used to derive its on-disk path.
func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", k.FileID, k.FileVersion, k.BlockID, k.BlockVersion)
}

// indexKey is the badger key bytes used to persist k's LRU position.
func (k Key) indexKey() []byte {
	return []byte("block:" + k.String())
}

// decodeIndexKey parses a badger key produced by Key.indexKey back into a
// Key, used when rebuilding the in-memory LRU list on startup.
func decodeIndexKey(raw []byte) (Key, error) {
	s := strings.TrimPrefix(string(raw), "block:")
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("gwcache: malformed index key %q", raw)
	}

	fileID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Key{}, err
	}
	fileVersion, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Key{}, err
	}
	blockID, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Key{}, err
	}
	blockVersion, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return Key{}, err
	}

	return Key{FileID: fileID, FileVersion: fileVersion, BlockID: blockID, BlockVersion: blockVersion}, nil
}

// WriteFlags controls write_block_async behavior.
type WriteFlags uint8

const (
	// FlagDetached tells the worker to reap the future itself once the
	// write completes; the caller does not intend to Wait on it.
	FlagDetached WriteFlags = 1 << iota
	// FlagUnshared grants the cache ownership of the byte buffer passed
	// to WriteBlockAsync: the caller must not touch it again.
	FlagUnshared
)

func (f WriteFlags) has(bit WriteFlags) bool { return f&bit != 0 }

// Result is the final outcome of a write, delivered through the write's
// Future once the worker's completion pass has run.
type Result struct {
	// WriteRC is zero on success, a negative errno-style code on failure.
	WriteRC int
	// Readable is true once the block has durably landed and open_block
	// may return its fd.
	Readable bool
}

// blockPath returns the on-disk path for k underneath root, one directory
// per (file_id, file_version) so reversion_file can rename a whole
// directory atomically.
func blockPath(root string, k Key) string {
	return filepath.Join(root,
		fmt.Sprintf("%d", k.FileID),
		fmt.Sprintf("%d", k.FileVersion),
		fmt.Sprintf("%d.%d", k.BlockID, k.BlockVersion),
	)
}

// fileVersionDir returns the directory holding every block of one
// (file_id, file_version) pair.
func fileVersionDir(root string, fileID uint64, fileVersion int64) string {
	return filepath.Join(root, fmt.Sprintf("%d", fileID), fmt.Sprintf("%d", fileVersion))
}
