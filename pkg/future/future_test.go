package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFuture_WaitBlocksUntilResolve(t *testing.T) {
	f := New[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve(42, nil)
	}()

	got, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestFuture_WaitRespectsContextCancellation(t *testing.T) {
	f := New[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestFuture_ResolveOnceWins(t *testing.T) {
	f := New[int]()
	f.Resolve(1, nil)
	f.Resolve(2, errors.New("should be ignored"))

	got, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected first resolve to win, got %d", got)
	}
}

func TestFuture_PeekBeforeAndAfterResolve(t *testing.T) {
	f := New[int]()

	if _, _, resolved := f.Peek(); resolved {
		t.Fatal("expected unresolved future to report not resolved")
	}

	f.Resolve(7, nil)

	got, err, resolved := f.Peek()
	if !resolved {
		t.Fatal("expected resolved future to report resolved")
	}
	if err != nil || got != 7 {
		t.Fatalf("expected (7, nil), got (%d, %v)", got, err)
	}
}

func TestFuture_ConcurrentWaitersAllObserveResult(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Wait(context.Background())
			if err != nil || got != 99 {
				t.Errorf("waiter got (%d, %v), want (99, nil)", got, err)
			}
		}()
	}

	f.Resolve(99, nil)
	wg.Wait()
}
