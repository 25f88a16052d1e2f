package gwcache

import (
	"context"
	"os"

	"github.com/syndicate-project/gateway/pkg/future"
)

// WriteBlockAsync reserves one slot against the hard limit, creates the
// on-disk file exclusively, enqueues the write for the worker, and returns
// a future the caller can Wait on for the final result.
//
// Fails immediately, returning a nil future, with ErrExists if the file
// already exists, or ErrStopped if the cache has been closed.
func (c *Cache) WriteBlockAsync(ctx context.Context, key Key, data []byte, flags WriteFlags) (*future.Future[Result], error) {
	if c.isStopped() {
		return nil, ErrStopped
	}

	if err := c.waitHardLimit(ctx); err != nil {
		return nil, err
	}

	path := blockPath(c.root, key)
	if err := os.MkdirAll(fileVersionDir(c.root, key.FileID, key.FileVersion), 0o755); err != nil {
		<-c.hardSem
		return nil, newCacheError("write", key, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		<-c.hardSem
		if os.IsExist(err) {
			return nil, newCacheError("write", key, ErrExists)
		}
		return nil, newCacheError("write", key, err)
	}
	f.Close()

	c.ongoing.add(key)

	result := future.New[Result]()
	w := &pendingWrite{key: key, data: data, flags: flags, result: result}
	c.buf.enqueuePending(w)
	c.wake()

	if flags.has(FlagDetached) {
		go func() {
			_, _ = result.Wait(context.Background())
		}()
	}

	return result, nil
}

// Wait blocks on fut's semaphore until the worker finalizes the write (or
// ctx is done), matching spec's wait(future) -> Result.
func (c *Cache) Wait(ctx context.Context, fut *future.Future[Result]) (Result, error) {
	return fut.Wait(ctx)
}
