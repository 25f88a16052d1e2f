package msclient

import (
	"context"
	"math/rand"
	"time"
)

// backoffMutex is a single-holder lock where a contended acquisition
// retries with randomized exponential backoff instead of a strict FIFO
// queue, mirroring the read/write CURL handles each being guarded by a
// "backoff-retry wlock" so a second call of the same class doesn't hammer
// the wire the instant the first releases.
type backoffMutex struct {
	ch chan struct{}
}

func (m *backoffMutex) init() {
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
}

// Lock blocks until acquired. ctx is not consulted: the acquisition is
// never abandoned, since a waiter that gave up mid-backoff but still
// called Unlock later would release a lock it never actually held.
func (m *backoffMutex) Lock(ctx context.Context) {
	m.init()

	select {
	case m.ch <- struct{}{}:
		return
	default:
	}

	backoff := 5 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	for {
		jitter := time.Duration(rand.Int63n(int64(backoff)))
		timer := time.NewTimer(backoff/2 + jitter)

		select {
		case m.ch <- struct{}{}:
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (m *backoffMutex) Unlock() {
	select {
	case <-m.ch:
	default:
	}
}
