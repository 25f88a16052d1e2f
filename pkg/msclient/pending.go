package msclient

import (
	"context"
	"sync"
	"time"

	"github.com/syndicate-project/gateway/internal/logger"
)

// entryKey is the (volume_id, file_id) pair the pending queue coalesces
// on: a second queue_update call for the same key replaces the first in
// place rather than appending.
type entryKey struct {
	VolumeID uint64
	FileID   uint64
}

// pendingQueue batches write/chmod/utime updates into periodic ms_updates
// POSTs instead of one RPC per attribute change.
type pendingQueue struct {
	client *Client

	mu      sync.Mutex
	entries map[entryKey]*EntryUpdate
	wake    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newPendingQueue(c *Client) *pendingQueue {
	return &pendingQueue{
		client:  c,
		entries: make(map[entryKey]*EntryUpdate),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (q *pendingQueue) Start() {
	q.wg.Add(1)
	go q.run()
}

func (q *pendingQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}

// Enqueue installs or replaces the update for (volumeID, fileID). If an
// update for this key already exists, upd replaces it in place and its
// deadline is nudged forward by deadlineDelta from the existing deadline,
// never later than now+deadline. Matches spec's queue_update(entry,
// deadline_ms, deadline_delta_ms).
func (q *pendingQueue) Enqueue(volumeID, fileID uint64, upd EntryUpdate, deadline, deadlineDelta time.Duration) {
	key := entryKey{VolumeID: volumeID, FileID: fileID}
	now := time.Now()

	q.mu.Lock()
	if existing, ok := q.entries[key]; ok {
		nudged := existing.deadline.Add(deadlineDelta)
		ceiling := now.Add(deadline)
		if nudged.After(ceiling) {
			nudged = ceiling
		}
		upd.deadline = nudged
	} else {
		upd.deadline = now.Add(deadline)
	}
	upd.VolumeID = volumeID
	upd.FileID = fileID
	q.entries[key] = &upd
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *pendingQueue) nearestDeadline() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var nearest time.Time
	found := false
	for _, e := range q.entries {
		if !found || e.deadline.Before(nearest) {
			nearest = e.deadline
			found = true
		}
	}
	return nearest, found
}

// drainExpired pops every entry whose deadline has passed.
func (q *pendingQueue) drainExpired() []EntryUpdate {
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var out []EntryUpdate
	for key, e := range q.entries {
		if !e.deadline.After(now) {
			out = append(out, *e)
			delete(q.entries, key)
		}
	}
	return out
}

// reinsertUnsuperseded puts updates back in the queue, but only those
// whose key isn't already held by a newer entry (I5: write_nonce
// ordering — a failed upload must never clobber a superseding update
// that arrived while the POST was in flight).
func (q *pendingQueue) reinsertUnsuperseded(updates []EntryUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, u := range updates {
		key := entryKey{VolumeID: u.VolumeID, FileID: u.FileID}
		if _, superseded := q.entries[key]; superseded {
			continue
		}
		uc := u
		q.entries[key] = &uc
	}
}

func (q *pendingQueue) run() {
	defer q.wg.Done()

	for {
		wait := 5 * time.Second
		if deadline, ok := q.nearestDeadline(); ok {
			if d := time.Until(deadline); d > 0 {
				wait = d
			} else {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-q.stop:
			timer.Stop()
			return
		case <-q.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		expired := q.drainExpired()
		if len(expired) == 0 {
			continue
		}

		if err := q.upload(expired); err != nil {
			logger.Warn("msclient: update upload failed, will retry", logger.Err(err))
			q.reinsertUnsuperseded(expired)
		}
	}
}

func (q *pendingQueue) upload(updates []EntryUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := &UpdatesMsg{GatewayID: q.client.gatewayID, Entries: updates}
	_, err := q.client.postSigned(ctx, "/ms_updates", msg, &ReplyMsg{})
	return err
}
