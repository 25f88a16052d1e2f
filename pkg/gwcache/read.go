package gwcache

import (
	"os"
	"time"
)

// IsBlockReadable reports whether key is safe to open: false while the
// block is still in the ongoing-writes set, meaning readers must wait.
func (c *Cache) IsBlockReadable(key Key) bool {
	return !c.ongoing.contains(key)
}

// OpenBlock opens the on-disk file for key for reading. Callers should
// check IsBlockReadable first; OpenBlock itself does not wait.
func (c *Cache) OpenBlock(key Key) (*os.File, error) {
	if !c.IsBlockReadable(key) {
		return nil, newCacheError("open", key, ErrNotReadable)
	}
	if !c.hasIndexEntry(key) {
		return nil, newCacheError("open", key, ErrNotFound)
	}

	f, err := os.Open(blockPath(c.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newCacheError("open", key, ErrNotFound)
		}
		return nil, newCacheError("open", key, err)
	}
	return f, nil
}

// ReadBlock reads the full contents of an already-open block file.
func (c *Cache) ReadBlock(key Key, f *os.File) ([]byte, error) {
	start := time.Now()
	data, err := os.ReadFile(f.Name())
	if c.metrics != nil {
		c.metrics.ObserveRead(int64(len(data)), time.Since(start), err == nil)
	}
	if err != nil {
		return nil, newCacheError("read", key, err)
	}
	return data, nil
}

// PromoteBlock enqueues key onto the promotes list; the worker splices
// promoted keys to the MRU tail on its next pass.
func (c *Cache) PromoteBlock(key Key) {
	c.buf.enqueuePromote(key)
	c.wake()
}
