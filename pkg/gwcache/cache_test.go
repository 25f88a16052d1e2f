package gwcache

import (
	"context"
	"testing"
	"time"
)

func newTestCache(t *testing.T, soft, hard int) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(Options{Root: dir, SoftLimit: soft, HardLimit: hard})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	c := newTestCache(t, 100, 100)
	key := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}

	fut, err := c.WriteBlockAsync(context.Background(), key, []byte("hello world"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := c.Wait(context.Background(), fut)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.WriteRC != 0 || !res.Readable {
		t.Fatalf("unexpected result: %+v", res)
	}

	if !c.IsBlockReadable(key) {
		t.Fatal("expected block readable after write completes")
	}

	f, err := c.OpenBlock(key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	data, err := c.ReadBlock(key, f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("expected 'hello world', got %q", data)
	}
}

func TestWriteBlockAsync_RejectsDuplicate(t *testing.T) {
	c := newTestCache(t, 100, 100)
	key := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}

	fut, err := c.WriteBlockAsync(context.Background(), key, []byte("a"), 0)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := c.Wait(context.Background(), fut); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if _, err := c.WriteBlockAsync(context.Background(), key, []byte("b"), 0); err == nil {
		t.Fatal("expected ErrExists on duplicate write")
	}
}

func TestWriteBlockAsync_RejectsAfterClose(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(Options{Root: dir, SoftLimit: 10, HardLimit: 10})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c.Close()

	key := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}
	if _, err := c.WriteBlockAsync(context.Background(), key, []byte("x"), 0); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestHardLimit_BlocksUntilContextDeadline(t *testing.T) {
	c := newTestCache(t, 1, 1)
	key1 := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}
	fut, err := c.WriteBlockAsync(context.Background(), key1, []byte("a"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Wait(context.Background(), fut); err != nil {
		t.Fatalf("wait: %v", err)
	}

	key2 := Key{FileID: 1, FileVersion: 1, BlockID: 1, BlockVersion: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.WriteBlockAsync(ctx, key2, []byte("b"), 0); err == nil {
		t.Fatal("expected hard limit to block write until context deadline")
	}
}

func TestEvictBlock_RemovesFromDisk(t *testing.T) {
	c := newTestCache(t, 100, 100)
	key := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}

	fut, err := c.WriteBlockAsync(context.Background(), key, []byte("a"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Wait(context.Background(), fut); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if err := c.EvictBlock(key); err != nil {
		t.Fatalf("evict: %v", err)
	}

	if _, err := c.OpenBlock(key); err == nil {
		t.Fatal("expected open to fail after eviction")
	}
}

func TestReversionFile_MovesBlocksToNewVersion(t *testing.T) {
	c := newTestCache(t, 100, 100)
	key := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}

	fut, err := c.WriteBlockAsync(context.Background(), key, []byte("a"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Wait(context.Background(), fut); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if err := c.ReversionFile(1, 1, 2); err != nil {
		t.Fatalf("reversion: %v", err)
	}

	newKey := Key{FileID: 1, FileVersion: 2, BlockID: 0, BlockVersion: 1}
	if _, err := c.OpenBlock(newKey); err != nil {
		t.Fatalf("expected block readable under new version: %v", err)
	}
}

func TestSoftLimit_TrimsBelowSoftLimit(t *testing.T) {
	c := newTestCache(t, 2, 10)

	for i := uint64(0); i < 5; i++ {
		key := Key{FileID: 1, FileVersion: 1, BlockID: i, BlockVersion: 1}
		fut, err := c.WriteBlockAsync(context.Background(), key, []byte("x"), 0)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if _, err := c.Wait(context.Background(), fut); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	// Give the worker's LRU-maintenance pass a moment to run.
	time.Sleep(50 * time.Millisecond)

	if c.lru.len() > 2 {
		t.Fatalf("expected LRU trimmed to soft limit 2, got %d", c.lru.len())
	}
}

func TestOpenBlock_RequiresIndexEntry(t *testing.T) {
	c := newTestCache(t, 100, 100)
	key := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}

	fut, err := c.WriteBlockAsync(context.Background(), key, []byte("a"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Wait(context.Background(), fut); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if !c.hasIndexEntry(key) {
		t.Fatal("expected index entry to exist after a completed write")
	}

	// A stray file with no index entry must not be openable: the badger
	// index, not the filesystem, is the source of truth for membership.
	c.deleteIndexEntry(key)
	if _, err := c.OpenBlock(key); err == nil {
		t.Fatal("expected open to fail once the index entry is gone")
	}
}
