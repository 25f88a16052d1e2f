package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/syndicate-project/gateway/pkg/future"
)

type fakeTransport struct {
	mu       sync.Mutex
	puts     int
	deletes  int
	failNext bool
}

func (f *fakeTransport) PutBlock(ctx context.Context, targetID uint64, fs FileSnapshot, blockID uint64, payload []byte) error {
	return f.record(true)
}

func (f *fakeTransport) PutManifest(ctx context.Context, targetID uint64, fs FileSnapshot, payload []byte) error {
	return f.record(true)
}

func (f *fakeTransport) DeleteBlock(ctx context.Context, targetID uint64, fs FileSnapshot, blockID uint64) error {
	return f.record(false)
}

func (f *fakeTransport) DeleteManifest(ctx context.Context, targetID uint64, fs FileSnapshot) error {
	return f.record(false)
}

func (f *fakeTransport) record(isPut bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("injected failure")
	}
	if isPut {
		f.puts++
	} else {
		f.deletes++
	}
	return nil
}

func (f *fakeTransport) counts() (puts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts, f.deletes
}

func singleTargetResolver(t RGTransport) TransportResolver {
	return func(targetID uint64) RGTransport { return t }
}

func TestQueue_PutBlockSucceeds(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 4, Workers: 2})
	q.Start(context.Background())
	defer q.Stop(time.Second)

	fut := future.New[Result]()
	if err := q.Enqueue(&Context{Kind: KindPutBlock, File: FileSnapshot{FileID: 1}, BlockID: 1, Future: fut}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r, err := fut.Wait(context.Background())
	if err != nil || !r.Succeeded {
		t.Fatalf("unexpected result: %+v err=%v", r, err)
	}

	puts, _ := ft.counts()
	if puts != 1 {
		t.Fatalf("expected 1 put, got %d", puts)
	}
}

func TestQueue_RejectsWhenFull(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 1, Workers: 0})
	// Workers never started, so the one slot fills and stays full.

	fut1 := future.New[Result]()
	if err := q.Enqueue(&Context{Kind: KindPutBlock, File: FileSnapshot{FileID: 1}, Future: fut1}); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}

	fut2 := future.New[Result]()
	err := q.Enqueue(&Context{Kind: KindPutBlock, File: FileSnapshot{FileID: 2}, Future: fut2})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	r, _ := fut2.Wait(context.Background())
	if r.Succeeded {
		t.Fatalf("rejected request should resolve unsuccessfully")
	}
}

func TestQueue_StopDrainsPending(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{QueueSize: 10, Workers: 2})
	q.Start(context.Background())

	futs := make([]*future.Future[Result], 5)
	for i := range futs {
		futs[i] = future.New[Result]()
		if err := q.Enqueue(&Context{Kind: KindDeleteBlock, File: FileSnapshot{FileID: uint64(i)}, Future: futs[i]}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	q.Stop(5 * time.Second)

	for i, fut := range futs {
		if !fut.IsResolved() {
			t.Fatalf("future %d not resolved after Stop", i)
		}
	}
}

func TestQueue_StopNotStarted(t *testing.T) {
	ft := &fakeTransport{}
	q := NewQueue(singleTargetResolver(ft), nil, Config{})
	q.Stop(time.Second) // must not block or panic
}
