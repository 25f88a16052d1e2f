package replication

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGC_DeletesBlocksThenManifestThenClearsLog(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 2})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	gc := NewGC(q, nil, nil)

	var mu sync.Mutex
	cleared := false
	done := make(chan struct{})

	gc.Submit(Job{
		File:        FileSnapshot{FileID: 7},
		OldBlocks:   map[uint64]uint64{1: 1, 2: 1, 3: 1},
		OldManifest: []byte("old-manifest"),
		OnVacuumLogClear: func() {
			mu.Lock()
			cleared = true
			mu.Unlock()
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for vacuum log clear")
	}

	mu.Lock()
	defer mu.Unlock()
	if !cleared {
		t.Fatal("expected vacuum log to be cleared")
	}

	_, deletes := ft.counts()
	if deletes != 4 { // 3 blocks + 1 manifest
		t.Fatalf("expected 4 deletes, got %d", deletes)
	}
}

func TestGC_NoBlocksStillDeletesManifest(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 1})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	gc := NewGC(q, nil, nil)

	done := make(chan struct{})
	gc.Submit(Job{
		File:             FileSnapshot{FileID: 9},
		OldManifest:      []byte("manifest"),
		OnVacuumLogClear: func() { close(done) },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestGC_VetoedBlockGoesToVacuumer(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 1})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	vac := NewVacuumer(q, nil, nil, time.Hour, nil)
	veto := func(volumeID, fileID, blockID uint64) bool { return blockID == 1 }
	gc := NewGC(q, veto, vac)

	done := make(chan struct{})
	gc.Submit(Job{
		File:             FileSnapshot{FileID: 11},
		OldBlocks:        map[uint64]uint64{1: 1},
		OnVacuumLogClear: func() { close(done) },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	vac.mu.Lock()
	defer vac.mu.Unlock()
	if len(vac.pending) != 1 {
		t.Fatalf("expected vetoed block recorded on vacuumer, got %d entries", len(vac.pending))
	}
}
