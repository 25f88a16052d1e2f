package gwcache

import (
	"context"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/metrics"
)

// Cache is the on-disk, content-addressed block store. One Cache owns one
// worker goroutine, one badger index (LRU membership + restart recovery),
// and a counting semaphore enforcing the hard block-count limit.
type Cache struct {
	root          string
	softLimit     int
	hardLimit     int
	metrics       metrics.GWCacheMetrics
	badgerMetrics metrics.BadgerIndexMetrics

	index *badger.DB

	badgerHits    int64
	badgerLookups int64
	badgerMu      sync.Mutex // guards badgerHits/badgerLookups

	buf     buffers
	ongoing *ongoingSet
	lru     *lruIndex

	hardSem chan struct{} // counting semaphore, capacity == hardLimit

	work     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	numWritten int64
	mu         sync.Mutex // guards numWritten
}

// Options configures a new Cache.
type Options struct {
	// Root is the directory blocks are stored under.
	Root string
	// IndexPath is the badger directory; defaults to Root/.index.
	IndexPath string
	// SoftLimit is the block count eviction begins trimming toward.
	SoftLimit int
	// HardLimit is the block count writes block against.
	HardLimit     int
	Metrics       metrics.GWCacheMetrics
	BadgerMetrics metrics.BadgerIndexMetrics
}

// Open creates or reopens a Cache rooted at opts.Root, starting its worker
// goroutine and loading (or initializing) the badger LRU index.
func Open(opts Options) (*Cache, error) {
	if opts.IndexPath == "" {
		opts.IndexPath = opts.Root + "/.index"
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, err
	}

	badgerOpts := badger.DefaultOptions(opts.IndexPath).WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		root:          opts.Root,
		softLimit:     opts.SoftLimit,
		hardLimit:     opts.HardLimit,
		metrics:       opts.Metrics,
		badgerMetrics: opts.BadgerMetrics,
		index:         db,
		ongoing:       newOngoingSet(),
		lru:           newLRUIndex(),
		hardSem:       make(chan struct{}, opts.HardLimit),
		work:          make(chan struct{}, 1),
		stopped:       make(chan struct{}),
	}

	if err := c.recoverIndex(); err != nil {
		db.Close()
		return nil, err
	}

	c.wg.Add(1)
	go c.runWorker()

	return c, nil
}

// Close stops the worker and closes the badger index. Safe to call more
// than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopped) })
	c.wg.Wait()
	return c.index.Close()
}

// Stats is a point-in-time snapshot of cache occupancy for the operator
// HTTP surface's /stats endpoint.
type Stats struct {
	BlocksHeld int
	HardLimit  int
	SoftLimit  int
	Written    int64
}

// Stats reports the current block count, configured limits, and
// cumulative blocks written since this Cache was opened.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	written := c.numWritten
	c.mu.Unlock()
	return Stats{
		BlocksHeld: c.lru.len(),
		HardLimit:  c.hardLimit,
		SoftLimit:  c.softLimit,
		Written:    written,
	}
}

// recoverIndex rebuilds the in-memory LRU list from badger's persisted
// membership, in badger key order (no insertion time is stored), and fills the hard-limit semaphore
// to match however many blocks are already on disk.
func (c *Cache) recoverIndex() error {
	return c.index.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("block:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k, err := decodeIndexKey(it.Item().Key())
			if err != nil {
				continue
			}
			c.lru.pushTail(k)
			select {
			case c.hardSem <- struct{}{}:
			default:
				// Hard limit smaller than what's on disk after a config
				// change; leave it over-subscribed rather than fail open.
			}
		}
		return nil
	})
}

// wake signals the worker that new work is available; non-blocking, since
// the worker drains everything enqueued on each wakeup regardless of how
// many times wake was called since.
func (c *Cache) wake() {
	select {
	case c.work <- struct{}{}:
	default:
	}
}

func (c *Cache) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// runWorker is the cache's single worker goroutine (spec 4.1 "Worker").
func (c *Cache) runWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopped:
			c.drainOnStop()
			return
		case <-c.work:
		case <-time.After(time.Second):
			// Periodic tick in case a wake was missed racing with Close.
		}

		pending, completed, promotes, evicts := c.buf.swap()

		for _, w := range pending {
			c.submitWrite(w)
		}
		for _, w := range completed {
			c.finishWrite(w)
		}

		c.maintainLRU(promotes, evicts)

		if c.isStopped() {
			return
		}
	}
}

// drainOnStop runs one last swap-and-process pass so writes enqueued right
// before Close was called still get a chance to finalize with ErrStopped
// rather than hang forever.
func (c *Cache) drainOnStop() {
	pending, completed, _, _ := c.buf.swap()
	for _, w := range pending {
		w.result.Resolve(Result{WriteRC: -1}, ErrStopped)
		c.ongoing.remove(w.key)
		<-c.hardSem
	}
	for _, w := range completed {
		w.result.Resolve(Result{WriteRC: -1}, ErrStopped)
	}
}

// submitWrite performs the actual (synchronous-from-Go's-perspective, but
// off the caller's goroutine) write and enqueues the result onto the
// completed buffer for the next pass, mirroring the async-submit/
// async-complete split the spec models around POSIX AIO.
func (c *Cache) submitWrite(w *pendingWrite) {
	start := time.Now()
	path := blockPath(c.root, w.key)
	size := int64(len(w.data))

	err := os.WriteFile(path, w.data, 0o644)
	if w.flags.has(FlagUnshared) {
		w.data = nil
	}

	if c.metrics != nil {
		c.metrics.ObserveWrite(size, time.Since(start))
	}

	if err != nil {
		w.result.Resolve(Result{WriteRC: -1}, err)
		c.ongoing.remove(w.key)
		<-c.hardSem
		os.Remove(path)
		return
	}

	c.buf.enqueueCompleted(w)
}

// finishWrite is step 4 of the worker pass: remove from the ongoing set and
// record the key as a fresh write for LRU insertion.
func (c *Cache) finishWrite(w *pendingWrite) {
	c.ongoing.remove(w.key)
	c.setIndexEntry(w.key)
	c.lru.pushTail(w.key)

	c.mu.Lock()
	c.numWritten++
	n := c.numWritten
	c.mu.Unlock()

	w.result.Resolve(Result{WriteRC: 0, Readable: true}, nil)

	if c.metrics != nil {
		c.metrics.RecordBlockState("dirty", 1)
		c.metrics.RecordCacheSize(uint64(n))
	}

	if w.flags.has(FlagDetached) {
		// Nothing left to do: the caller never intends to Wait, and the
		// future has already been resolved above for any stray waiter.
	}
}

// maintainLRU is step 5: splice promotes and new writes to the tail,
// evicts to the head, then trim down to the soft limit.
func (c *Cache) maintainLRU(promotes, evicts []Key) {
	for _, k := range promotes {
		c.lru.pushTail(k)
	}
	for _, k := range evicts {
		c.lru.pushHead(k)
	}

	for c.lru.len() > c.softLimit || len(evicts) > 0 {
		k, ok := c.lru.popHead()
		if !ok {
			break
		}
		c.unlinkBlock(k)
		if len(evicts) > 0 {
			evicts = evicts[1:]
		}
	}
}

func (c *Cache) unlinkBlock(k Key) {
	if err := os.Remove(blockPath(c.root, k)); err != nil && !os.IsNotExist(err) {
		logger.Warn("gwcache: failed to unlink evicted block", "key", k.String(), "error", err)
		return
	}
	c.deleteIndexEntry(k)
	select {
	case <-c.hardSem:
	default:
	}
	if c.metrics != nil {
		c.metrics.RecordEviction("lru", 0)
		c.metrics.RecordBlockState("dirty", -1)
	}
}

func (c *Cache) setIndexEntry(k Key) {
	_ = c.index.Update(func(txn *badger.Txn) error {
		return txn.Set(k.indexKey(), []byte{1})
	})
}

func (c *Cache) deleteIndexEntry(k Key) {
	_ = c.index.Update(func(txn *badger.Txn) error {
		return txn.Delete(k.indexKey())
	})
}

// hasIndexEntry reports whether k is a member of the badger index, which is
// the cache's source of truth for membership (a block file on disk with no
// index entry is treated as absent). Each lookup is recorded against
// badgerMetrics as a hit or miss, and the running hit ratio is refreshed.
func (c *Cache) hasIndexEntry(k Key) bool {
	var found bool
	_ = c.index.View(func(txn *badger.Txn) error {
		_, err := txn.Get(k.indexKey())
		found = err == nil
		return nil
	})

	if c.badgerMetrics != nil {
		c.badgerMu.Lock()
		c.badgerLookups++
		if found {
			c.badgerHits++
			c.badgerMetrics.RecordCacheHit("index")
		} else {
			c.badgerMetrics.RecordCacheMiss("index")
		}
		ratio := float64(c.badgerHits) / float64(c.badgerLookups)
		c.badgerMu.Unlock()
		c.badgerMetrics.RecordCacheHitRatio("index", ratio)
	}

	return found
}

// waitHardLimit blocks until a slot is free against the hard limit, or ctx
// is done.
func (c *Cache) waitHardLimit(ctx context.Context) error {
	select {
	case c.hardSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}
