package replication

import (
	"context"
	"sync"
	"time"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/metrics"
)

// Queue is the bounded, worker-pooled replica request queue a sync
// pipeline phase enqueues PUTs and DELETEs onto. One Queue is shared by
// every file on the gateway; FileSnapshot on each Context identifies
// which sync the request belongs to for logging and metrics only.
type Queue struct {
	resolver TransportResolver
	metrics  metrics.ReplicationMetrics

	queue     chan *Context
	workers   int
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu        sync.Mutex
	started   bool
	closed    bool
	pending   int
	completed int
	failed    int
}

// Config configures a Queue.
type Config struct {
	// QueueSize bounds the number of requests awaiting a worker.
	QueueSize int
	// Workers is the number of concurrent replica-request workers.
	Workers int
}

// NewQueue builds a Queue that dispatches through resolver, reporting to
// m (which may be nil).
func NewQueue(resolver TransportResolver, m metrics.ReplicationMetrics, cfg Config) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Queue{
		resolver:  resolver,
		metrics:   m,
		queue:     make(chan *Context, cfg.QueueSize),
		workers:   cfg.Workers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start spins up the worker pool. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	logger.Info("starting replication queue", "workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	go func() {
		q.wg.Wait()
		close(q.stoppedCh)
	}()
}

// Stop signals workers to drain and exit, waiting up to timeout.
func (q *Queue) Stop(timeout time.Duration) {
	q.mu.Lock()
	if !q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stopCh)

	select {
	case <-q.stoppedCh:
		logger.Info("replication queue stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("replication queue stop timed out", "pending", q.Pending())
	}
}

// Enqueue admits req for asynchronous processing. Non-blocking: returns
// ErrQueueFull rather than backing up the calling sync phase, and
// resolves req.Future to that error so the caller's wait unblocks
// instead of hanging.
func (q *Queue) Enqueue(req *Context) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		req.Future.Resolve(Result{}, ErrClosed)
		return ErrClosed
	}

	req.enqueuedAt = time.Now()

	select {
	case q.queue <- req:
		q.mu.Lock()
		q.pending++
		depth := q.pending
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.RecordQueueDepth(depth)
		}
		return nil
	default:
		logger.Warn("replication queue full, rejecting request",
			"kind", req.Kind.String(), "file_id", req.File.FileID)
		req.Future.Resolve(Result{}, ErrQueueFull)
		return ErrQueueFull
	}
}

// Pending returns the number of admitted requests not yet finished:
// those awaiting a worker plus those a worker is dispatching.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Stats returns cumulative request counters.
func (q *Queue) Stats() (pending, completed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending, q.completed, q.failed
}

func (q *Queue) worker(ctx context.Context, _ int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			q.drain(ctx)
			return
		case <-ctx.Done():
			return
		case req, ok := <-q.queue:
			if !ok {
				return
			}
			q.process(ctx, req)
		}
	}
}

// drain processes whatever is already queued before a stopped worker
// exits; it never blocks waiting for new arrivals.
func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case req, ok := <-q.queue:
			if !ok {
				return
			}
			q.process(ctx, req)
		default:
			return
		}
	}
}

func (q *Queue) process(parent context.Context, req *Context) {
	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	start := time.Now()
	err := q.dispatch(ctx, req)

	q.mu.Lock()
	q.pending--
	if err != nil {
		q.failed++
	} else {
		q.completed++
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.ObserveReplicaRequest(req.Kind.String(), time.Since(start), err)
	}

	if err != nil {
		logger.Error("replica request failed",
			"kind", req.Kind.String(), "file_id", req.File.FileID,
			"target", req.TargetID, "error", err)
	}

	result := Result{Succeeded: err == nil, Err: err}
	req.Future.Resolve(result, err)
	if req.OnComplete != nil {
		req.OnComplete(result)
	}
}

func (q *Queue) dispatch(ctx context.Context, req *Context) error {
	transport := q.resolver(req.TargetID)
	if transport == nil {
		return ErrNoTransport
	}

	switch req.Kind {
	case KindPutBlock:
		return transport.PutBlock(ctx, req.TargetID, req.File, req.BlockID, req.Payload)
	case KindPutManifest:
		return transport.PutManifest(ctx, req.TargetID, req.File, req.Payload)
	case KindDeleteBlock:
		return transport.DeleteBlock(ctx, req.TargetID, req.File, req.BlockID)
	case KindDeleteManifest:
		return transport.DeleteManifest(ctx, req.TargetID, req.File)
	default:
		return nil
	}
}
