package downloader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/syndicate-project/gateway/pkg/bufpool"
	"github.com/syndicate-project/gateway/pkg/metrics"
)

// ErrCancelled is the TransferErrno recorded when cancel() wins the race
// against an in-flight or not-yet-started transfer.
var ErrCancelled = errors.New("downloader: transfer cancelled")

// CacheConnector rewrites a context's URL before it enters the transfer
// pool (for CDN routing/URL rewriting). Returning an error aborts start.
type CacheConnector func(ctx *Context) error

// Downloader manages a pool of concurrent HTTP transfers. Where the
// original design drives libcurl's multi-perform loop from one worker
// thread, Downloader dispatches one goroutine per active transfer and
// uses an http.Client shared across all of them; max concurrent transfers
// is enforced with a counting semaphore rather than a multi handle limit.
type Downloader struct {
	client  *http.Client
	connect CacheConnector
	metrics metrics.DownloaderMetrics

	sem chan struct{}

	mu       sync.Mutex
	inFlight map[*Context]context.CancelFunc
	stopped  bool
}

// Options configures a new Downloader.
type Options struct {
	MaxConcurrentTransfers int
	RequestTimeout         time.Duration
	CacheConnector         CacheConnector
	Metrics                metrics.DownloaderMetrics
}

// New returns a ready-to-use Downloader.
func New(opts Options) *Downloader {
	if opts.MaxConcurrentTransfers <= 0 {
		opts.MaxConcurrentTransfers = 16
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	return &Downloader{
		client:   &http.Client{Timeout: opts.RequestTimeout},
		connect:  opts.CacheConnector,
		metrics:  opts.Metrics,
		sem:      make(chan struct{}, opts.MaxConcurrentTransfers),
		inFlight: make(map[*Context]context.CancelFunc),
	}
}

// Start transitions ctx from INIT to PENDING, runs the cache-connector
// hook if configured, then dispatches the transfer. Mirrors spec's
// start(dl, ctx).
func (d *Downloader) Start(ctx *Context) error {
	ctx.finalizeMu.Lock()
	if ctx.state != StateInit {
		ctx.finalizeMu.Unlock()
		return errors.New("downloader: context not in INIT state")
	}
	ctx.state = StatePending
	ctx.finalizeMu.Unlock()

	if d.connect != nil {
		if err := d.connect(ctx); err != nil {
			ctx.finalize(0, ctx.URL, nil, err)
			return err
		}
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		ctx.finalize(0, ctx.URL, nil, errors.New("downloader: stopped"))
		return errors.New("downloader: stopped")
	}
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// run performs one transfer: acquires a concurrency slot, issues the
// request, bounds the response body, and finalizes the context.
func (d *Downloader) run(ctx *Context) {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	reqCtx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	ctx.finalizeMu.Lock()
	if ctx.state == StateFinalized {
		// Cancel already finalized this context while it was PENDING.
		ctx.finalizeMu.Unlock()
		d.mu.Unlock()
		cancel()
		return
	}
	if ctx.state == StateCancelling {
		ctx.finalizeMu.Unlock()
		d.mu.Unlock()
		cancel()
		ctx.finalize(0, ctx.URL, nil, ErrCancelled)
		return
	}
	ctx.state = StateRunning
	ctx.cancel = cancel
	ctx.finalizeMu.Unlock()
	d.inFlight[ctx] = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inFlight, ctx)
		d.mu.Unlock()
	}()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ctx.URL, nil)
	if err != nil {
		ctx.finalize(0, ctx.URL, nil, err)
		return
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.Canceled) {
			ctx.finalize(0, ctx.URL, nil, ErrCancelled)
		} else {
			ctx.finalize(0, ctx.URL, nil, err)
		}
		if d.metrics != nil {
			d.metrics.ObserveDownload("block", 0, time.Since(start), err)
		}
		return
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if ctx.MaxLen > 0 {
		reader = io.LimitReader(resp.Body, ctx.MaxLen)
	}

	var body []byte
	if ctx.MaxLen > 0 && ctx.MaxLen <= bufpool.DefaultLargeSize {
		// Known, bounded response size: read into a pooled scratch buffer
		// instead of io.ReadAll's repeated grow-and-copy, then copy out the
		// exact-length result so the pooled buffer can be returned right away.
		body, err = readBounded(reader, int(ctx.MaxLen))
	} else {
		body, err = io.ReadAll(reader)
	}

	effectiveURL := ctx.URL
	if resp.Request != nil && resp.Request.URL != nil {
		effectiveURL = resp.Request.URL.String()
	}

	ctx.finalize(resp.StatusCode, effectiveURL, body, err)

	if d.metrics != nil {
		d.metrics.ObserveDownload("block", int64(len(body)), time.Since(start), err)
	}
}

// Cancel enqueues ctx for cancellation and waits for the worker to
// actually finalize it. Returns nil if ctx was already finalized (a no-op
// success), matching spec's "returns 0 if already finalized".
func (d *Downloader) Cancel(ctx *Context) error {
	ctx.finalizeMu.Lock()
	switch ctx.state {
	case StateFinalized:
		ctx.finalizeMu.Unlock()
		return nil
	case StateCancelling:
		ctx.finalizeMu.Unlock()
		return errors.New("downloader: cancellation already in progress")
	case StatePending:
		// Ordering guarantee O3: a still-PENDING context (cache-connector
		// hook not yet dispatched to run()) goes straight to FINALIZED.
		ctx.state = StateCancelling
		ctx.finalizeMu.Unlock()
		ctx.finalize(0, ctx.URL, nil, ErrCancelled)
		return nil
	case StateRunning:
		ctx.state = StateCancelling
		cancelFn := ctx.cancel
		ctx.finalizeMu.Unlock()
		if cancelFn != nil {
			cancelFn()
		}
		ctx.Wait(0)
		return nil
	default:
		ctx.finalizeMu.Unlock()
		return errors.New("downloader: context not started")
	}
}

// Stop prevents any further Start calls from dispatching new transfers.
// In-flight transfers are allowed to finish naturally.
func (d *Downloader) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

// readBounded reads up to n bytes from r using a pooled scratch buffer
// rather than io.ReadAll's repeated doubling-reallocation, then copies the
// result out so the pooled buffer can be returned immediately.
func readBounded(r io.Reader, n int) ([]byte, error) {
	scratch := bufpool.Get(n)
	defer bufpool.Put(scratch)

	read, err := io.ReadFull(r, scratch)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if err != nil {
		return nil, err
	}

	body := make([]byte, read)
	copy(body, scratch[:read])
	return body, nil
}
