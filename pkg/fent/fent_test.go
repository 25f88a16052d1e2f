package fent

import (
	"testing"
	"time"
)

func newTestFile() *File {
	return New(1, 100, 200, 7, 0644)
}

func TestNew_DefaultsCoordinatorToSelf(t *testing.T) {
	f := newTestFile()
	if !f.IsCoordinator(7) {
		t.Fatal("expected freshly created file to be self-coordinated")
	}
}

// TestI1_DirtyBlockRequiresCacheEntry exercises invariant I1 at the
// bookkeeping level: MarkDirty must remove the block from bufferred_blocks
// and install it in dirty_blocks atomically from the caller's perspective.
func TestI1_DirtyBlockRequiresCacheEntry(t *testing.T) {
	f := newTestFile()
	f.BufferWrite(3, []byte("hello"))

	f.MarkDirty(3, 1, 42)

	if _, ok := f.BufferedBlocks()[3]; ok {
		t.Fatal("expected block removed from bufferred_blocks after MarkDirty")
	}
	db, ok := f.DirtyBlocks()[3]
	if !ok {
		t.Fatal("expected block present in dirty_blocks after MarkDirty")
	}
	if db.BlockVersion != 1 || db.CacheFD != 42 {
		t.Fatalf("unexpected dirty block record: %+v", db)
	}
}

// TestI5_WriteNonceStrictlyIncreases exercises invariant I5.
func TestI5_WriteNonceStrictlyIncreases(t *testing.T) {
	f := newTestFile()
	if f.WriteNonce() != 0 {
		t.Fatalf("expected initial write_nonce 0, got %d", f.WriteNonce())
	}
	f.BumpWriteNonce()
	f.BumpWriteNonce()
	if f.WriteNonce() != 2 {
		t.Fatalf("expected write_nonce 2, got %d", f.WriteNonce())
	}
}

func TestTruncate_BumpsVersionAndReshapesManifest(t *testing.T) {
	f := newTestFile()
	f.SetManifestEntry(0, ManifestEntry{BlockVersion: 1})
	f.SetManifestEntry(1, ManifestEntry{BlockVersion: 1})
	f.SetManifestEntry(2, ManifestEntry{BlockVersion: 1})

	before := f.Version()
	f.Truncate(4096, 4096, time.Now())

	if f.Version() != before+1 {
		t.Fatalf("expected version bump, got %d -> %d", before, f.Version())
	}
	if _, ok := f.ManifestEntry(0); !ok {
		t.Fatal("expected block 0 to survive truncate to one block")
	}
	if _, ok := f.ManifestEntry(1); ok {
		t.Fatal("expected block 1 to be dropped by truncate")
	}
}

func TestTruncate_ToZeroClearsManifest(t *testing.T) {
	f := newTestFile()
	f.SetManifestEntry(0, ManifestEntry{BlockVersion: 1})

	f.Truncate(0, 4096, time.Now())

	if _, ok := f.ManifestEntry(0); ok {
		t.Fatal("expected manifest cleared after truncate to zero")
	}
}

func TestStaleRoundTrip(t *testing.T) {
	f := newTestFile()
	if f.Stale() {
		t.Fatal("expected fresh file to not be stale")
	}
	f.MarkStale()
	if !f.Stale() {
		t.Fatal("expected MarkStale to set stale flag")
	}
	f.ClearStale()
	if f.Stale() {
		t.Fatal("expected ClearStale to clear stale flag")
	}
}

func TestBlockKey_Less(t *testing.T) {
	a := BlockKey{FileID: 1, FileVersion: 1, BlockID: 1, BlockVersion: 1}
	b := BlockKey{FileID: 1, FileVersion: 1, BlockID: 1, BlockVersion: 2}
	if !a.Less(b) {
		t.Fatal("expected a < b on block version")
	}
	if b.Less(a) {
		t.Fatal("expected b not less than a")
	}
}

func TestSyncQueue_FIFOOrder(t *testing.T) {
	f := newTestFile()

	sc1 := Snapshot(f, true)
	isHead := Enqueue(f, sc1)
	if !isHead {
		t.Fatal("expected first enqueued context to be head")
	}

	sc2 := Snapshot(f, true)
	isHead2 := Enqueue(f, sc2)
	if isHead2 {
		t.Fatal("expected second enqueued context to not be head")
	}

	done := make(chan struct{})
	go func() {
		sc2.WaitTurn()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("sc2 should not proceed before sc1 is popped")
	case <-time.After(10 * time.Millisecond):
	}

	PopAndWakeNext(f, sc1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected sc2 to be woken after sc1 popped")
	}
}

func TestSnapshot_StealsDirtyAndGarbageBlocks(t *testing.T) {
	f := newTestFile()
	f.dirtyBlocks[0] = DirtyBlock{BlockVersion: 1}
	f.AppendGarbage(0, 0)

	sc := Snapshot(f, true)

	if len(sc.DirtyBlocks) != 1 {
		t.Fatalf("expected snapshot to carry 1 dirty block, got %d", len(sc.DirtyBlocks))
	}
	if len(f.DirtyBlocks()) != 0 {
		t.Fatal("expected live fent dirty_blocks to be emptied after snapshot")
	}
	if len(f.GarbageBlocks()) != 0 {
		t.Fatal("expected live fent garbage_blocks to be emptied after snapshot")
	}
}

func TestRevert_MergesSnapshotBackOntoFent(t *testing.T) {
	f := newTestFile()
	f.dirtyBlocks[5] = DirtyBlock{BlockVersion: 2}
	sc := Snapshot(f, true)

	f.dirtyBlocks[9] = DirtyBlock{BlockVersion: 1} // a write that raced in after the snapshot

	Revert(f, sc)

	if len(f.DirtyBlocks()) != 2 {
		t.Fatalf("expected revert to merge snapshot dirty blocks back, got %d entries", len(f.DirtyBlocks()))
	}
	if !sc.WasReverted {
		t.Fatal("expected sc.WasReverted to be set")
	}
}

func TestDequeue_RemovesMiddleEntryAndWakesHeadOnly(t *testing.T) {
	f := newTestFile()

	sc1 := Snapshot(f, true)
	Enqueue(f, sc1)
	sc2 := Snapshot(f, true)
	Enqueue(f, sc2)
	sc3 := Snapshot(f, true)
	Enqueue(f, sc3)

	Dequeue(f, sc2)

	if len(f.syncQueue) != 2 || f.syncQueue[0] != sc1 || f.syncQueue[1] != sc3 {
		t.Fatalf("expected sc2 removed from the middle, got %+v", f.syncQueue)
	}

	done := make(chan struct{})
	go func() {
		sc3.WaitTurn()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("sc3 should still wait behind sc1 after sc2 was dequeued")
	case <-time.After(10 * time.Millisecond):
	}

	Dequeue(f, sc1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected sc3 woken once sc1 (the head) was dequeued")
	}
}

func TestCommitWrite_BumpsVersionAndAttrs(t *testing.T) {
	f := newTestFile()
	before := f.Version()

	newVersion := f.CommitWrite(4096, time.Now())

	if newVersion != before+1 || f.Version() != newVersion {
		t.Fatalf("expected version bump to %d, got %d", before+1, f.Version())
	}
	if f.Size() != 4096 {
		t.Fatalf("expected size updated to 4096, got %d", f.Size())
	}
}

func TestAdoptVersion_InstallsRemoteVersion(t *testing.T) {
	f := newTestFile()

	f.AdoptVersion(9, time.Now())

	if f.Version() != 9 {
		t.Fatalf("expected adopted version 9, got %d", f.Version())
	}
}

func TestCollator_CoalescesWritesToSameBlock(t *testing.T) {
	f := newTestFile()
	c := NewCollator(4096)

	c.Write(f, 0, []byte("ab"))
	c.Write(f, 2, []byte("cd"))

	if len(f.BufferedBlocks()) != 0 {
		t.Fatal("expected no flush yet, collator should still be buffering")
	}

	c.Flush(f)

	buffered, ok := f.BufferedBlocks()[0]
	if !ok {
		t.Fatal("expected block 0 buffered after flush")
	}
	if string(buffered.Bytes[0:4]) != "abcd" {
		t.Fatalf("expected coalesced bytes 'abcd', got %q", buffered.Bytes[0:4])
	}
}

func TestCollator_FlushesOnBlockBoundaryCrossing(t *testing.T) {
	f := newTestFile()
	c := NewCollator(4096)

	c.Write(f, 0, []byte("x"))
	c.Write(f, 4096, []byte("y")) // different block: should trigger an implicit flush

	if _, ok := f.BufferedBlocks()[0]; !ok {
		t.Fatal("expected block 0 to have been flushed when block 1 write arrived")
	}
	if !c.Pending() {
		t.Fatal("expected collator to still hold the new block 1 write")
	}
}
