package downloader

import "sync"

// Set groups contexts so a single waiter can be woken whenever any member
// finalizes ("download set" primitive, spec 4.2).
type Set struct {
	mu      sync.Mutex
	members map[*Context]struct{}
	ready   chan *Context
}

// NewSet returns an empty download set.
func NewSet() *Set {
	return &Set{
		members: make(map[*Context]struct{}),
		ready:   make(chan *Context, 1),
	}
}

// Add registers ctx as a member; ctx carries a back-pointer to every set
// it belongs to so finalize() can notify them all.
func (s *Set) Add(ctx *Context) {
	s.mu.Lock()
	s.members[ctx] = struct{}{}
	s.mu.Unlock()

	ctx.finalizeMu.Lock()
	already := ctx.state == StateFinalized
	ctx.sets = append(ctx.sets, s)
	ctx.finalizeMu.Unlock()

	if already {
		s.notify(ctx)
	}
}

// Clear removes every member from the set without finalizing any of them.
func (s *Set) Clear() {
	s.mu.Lock()
	s.members = make(map[*Context]struct{})
	s.mu.Unlock()
}

// notify is called by a member's finalize(); non-blocking, since WaitAny
// only needs to know that at least one member is ready.
func (s *Set) notify(ctx *Context) {
	select {
	case s.ready <- ctx:
	default:
	}
}

// WaitAny blocks until at least one member has finalized, returning it.
// If multiple members are already finalized, an arbitrary one is
// returned; the caller is expected to scan all members for others.
func (s *Set) WaitAny() *Context {
	ready := <-s.ready
	return ready
}

// Members returns the current member set as a slice.
func (s *Set) Members() []*Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Context, 0, len(s.members))
	for c := range s.members {
		out = append(out, c)
	}
	return out
}
