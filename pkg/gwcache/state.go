package gwcache

import (
	"container/list"
	"sync"

	"github.com/syndicate-project/gateway/pkg/future"
)

// pendingWrite is a queued write awaiting the worker's next pass: the key,
// the bytes to write, the flags, and the future the caller is (maybe)
// waiting on.
type pendingWrite struct {
	key    Key
	data   []byte
	flags  WriteFlags
	result *future.Future[Result]
}

// buffers holds the four double-buffered work lists the worker swaps under
// a single lock each pass: pending writes, completed writes, promotes, and
// evicts.
type buffers struct {
	mu        sync.Mutex
	pending   []*pendingWrite
	completed []*pendingWrite
	promotes  []Key
	evicts    []Key
}

func (b *buffers) swap() (pending, completed []*pendingWrite, promotes, evicts []Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending, b.pending = b.pending, nil
	completed, b.completed = b.completed, nil
	promotes, b.promotes = b.promotes, nil
	evicts, b.evicts = b.evicts, nil
	return
}

func (b *buffers) enqueuePending(w *pendingWrite) {
	b.mu.Lock()
	b.pending = append(b.pending, w)
	b.mu.Unlock()
}

func (b *buffers) enqueueCompleted(w *pendingWrite) {
	b.mu.Lock()
	b.completed = append(b.completed, w)
	b.mu.Unlock()
}

func (b *buffers) enqueuePromote(k Key) {
	b.mu.Lock()
	b.promotes = append(b.promotes, k)
	b.mu.Unlock()
}

func (b *buffers) enqueueEvict(k Key) {
	b.mu.Lock()
	b.evicts = append(b.evicts, k)
	b.mu.Unlock()
}

// ongoingSet tracks keys with an in-flight (not-yet-durable) write; reads
// against a key in this set must wait rather than open the file.
type ongoingSet struct {
	mu   sync.RWMutex
	keys map[Key]struct{}
}

func newOngoingSet() *ongoingSet {
	return &ongoingSet{keys: make(map[Key]struct{})}
}

func (s *ongoingSet) add(k Key) {
	s.mu.Lock()
	s.keys[k] = struct{}{}
	s.mu.Unlock()
}

func (s *ongoingSet) remove(k Key) {
	s.mu.Lock()
	delete(s.keys, k)
	s.mu.Unlock()
}

func (s *ongoingSet) contains(k Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[k]
	return ok
}

// lruIndex is the in-memory MRU-tail/LRU-head doubly linked list backing
// eviction order; membership is mirrored into badger so it survives a
// restart (startup recovery rebuilds the list from there).
type lruIndex struct {
	mu       sync.Mutex
	order    *list.List
	elements map[Key]*list.Element
}

func newLRUIndex() *lruIndex {
	return &lruIndex{
		order:    list.New(),
		elements: make(map[Key]*list.Element),
	}
}

// pushTail inserts or moves k to the MRU tail.
func (l *lruIndex) pushTail(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.elements[k]; ok {
		l.order.MoveToBack(el)
		return
	}
	l.elements[k] = l.order.PushBack(k)
}

// pushHead inserts or moves k to the LRU head, for eager eviction.
func (l *lruIndex) pushHead(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.elements[k]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.elements[k] = l.order.PushFront(k)
}

// popHead removes and returns the least-recently-used key, if any.
func (l *lruIndex) popHead() (Key, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	front := l.order.Front()
	if front == nil {
		return Key{}, false
	}
	l.order.Remove(front)
	k := front.Value.(Key)
	delete(l.elements, k)
	return k, true
}

// remove drops k from the index entirely, e.g. on explicit eviction.
func (l *lruIndex) remove(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.elements[k]; ok {
		l.order.Remove(el)
		delete(l.elements, k)
	}
}

// len reports the number of tracked blocks.
func (l *lruIndex) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
