package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeVacuumStore struct {
	mu      sync.Mutex
	pending []VacuumLogEntry
	cleared []VacuumLogEntry
}

func (s *fakeVacuumStore) ListPending(ctx context.Context) ([]VacuumLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VacuumLogEntry(nil), s.pending...), nil
}

func (s *fakeVacuumStore) ClearEntry(ctx context.Context, e VacuumLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, e)
	return nil
}

type fakeOrphanReplicator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeOrphanReplicator) ReplicateOrphan(ctx context.Context, e VacuumLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("injected")
	}
	return nil
}

func TestVacuumer_ReplaysLogOnStart(t *testing.T) {
	store := &fakeVacuumStore{pending: []VacuumLogEntry{
		{Kind: KindLogEntry, File: FileSnapshot{FileID: 1}, BlockID: 5},
	}}
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 1})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	vac := NewVacuumer(q, store, nil, time.Hour, nil)
	if err := vac.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer vac.Stop()

	vac.mu.Lock()
	pending := len(vac.pending)
	vac.mu.Unlock()
	if pending != 1 {
		t.Fatalf("expected replayed entry to be pending, got %d", pending)
	}
}

func TestVacuumer_ReconcileRetriesDelete(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 1})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	store := &fakeVacuumStore{}
	vac := NewVacuumer(q, store, nil, time.Hour, nil)
	vac.RecordFailedDelete(FileSnapshot{FileID: 3}, 1, 0)

	vac.reconcile(context.Background())

	store.mu.Lock()
	cleared := len(store.cleared)
	store.mu.Unlock()
	if cleared != 1 {
		t.Fatalf("expected 1 cleared log entry, got %d", cleared)
	}
}

func TestVacuumer_OrphanedWriteUsesReplicator(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 1})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	orphan := &fakeOrphanReplicator{}
	store := &fakeVacuumStore{}
	vac := NewVacuumer(q, store, orphan, time.Hour, nil)
	vac.record(VacuumLogEntry{Kind: KindOrphanedWrite, File: FileSnapshot{FileID: 8}})

	vac.reconcile(context.Background())

	orphan.mu.Lock()
	calls := orphan.calls
	orphan.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected orphan replicator to be called once, got %d", calls)
	}
}

func TestVacuumer_OrphanedWriteWithoutReplicatorStaysPending(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 1})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	vac := NewVacuumer(q, nil, nil, time.Hour, nil)
	vac.record(VacuumLogEntry{Kind: KindOrphanedWrite, File: FileSnapshot{FileID: 8}})

	vac.reconcile(context.Background())

	vac.mu.Lock()
	defer vac.mu.Unlock()
	if len(vac.pending) != 1 {
		t.Fatalf("expected entry to remain pending, got %d", len(vac.pending))
	}
}
