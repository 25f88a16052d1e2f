package gwcache

import (
	"os"
	"path/filepath"
	"strconv"
)

// EvictBlock synchronously removes key from disk and the LRU index.
func (c *Cache) EvictBlock(key Key) error {
	path := blockPath(c.root, key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return newCacheError("evict", key, err)
	}
	c.lru.remove(key)
	c.deleteIndexEntry(key)
	if c.metrics != nil {
		c.metrics.RecordEviction("explicit", 0)
		c.metrics.RecordBlockState("dirty", -1)
	}
	return nil
}

// EvictBlockAsync enqueues key onto the worker's evicts list, processed
// under the LRU lock on the worker's next pass.
func (c *Cache) EvictBlockAsync(key Key) {
	c.buf.enqueueEvict(key)
	c.wake()
}

// EvictFile walks the on-disk directory for (fileID, fileVersion) and
// unlinks every block in it.
func (c *Cache) EvictFile(fileID uint64, fileVersion int64) error {
	dir := fileVersionDir(c.root, fileID, fileVersion)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := parseBlockFilename(fileID, fileVersion, entry.Name())
		if !ok {
			continue
		}
		c.lru.remove(key)
		c.deleteIndexEntry(key)
	}

	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordEviction("file", 0)
	}
	return nil
}

// ReversionFile atomically renames the on-disk file-version directory from
// oldVersion to newVersion, then re-scans the new directory to insert LRU
// entries under the new version. Old entries still tracked under the old
// version naturally age off the LRU.
func (c *Cache) ReversionFile(fileID uint64, oldVersion, newVersion int64) error {
	oldDir := fileVersionDir(c.root, fileID, oldVersion)
	newDir := fileVersionDir(c.root, fileID, newVersion)

	if err := os.MkdirAll(filepath.Dir(newDir), 0o755); err != nil {
		return err
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(newDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := parseBlockFilename(fileID, newVersion, entry.Name())
		if !ok {
			continue
		}
		c.lru.pushTail(key)
		c.setIndexEntry(key)
	}
	return nil
}

// parseBlockFilename parses a "<block_id>.<block_version>" on-disk
// filename back into a Key for the given (fileID, fileVersion).
func parseBlockFilename(fileID uint64, fileVersion int64, name string) (Key, bool) {
	dot := -1
	for i, r := range name {
		if r == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return Key{}, false
	}

	blockID, err := strconv.ParseUint(name[:dot], 10, 64)
	if err != nil {
		return Key{}, false
	}
	blockVersion, err := strconv.ParseUint(name[dot+1:], 10, 64)
	if err != nil {
		return Key{}, false
	}

	return Key{FileID: fileID, FileVersion: fileVersion, BlockID: blockID, BlockVersion: blockVersion}, true
}
