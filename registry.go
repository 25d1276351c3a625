package reqgate

import (
	"context"
	"sync"
)

type entryState int

const (
	statePending entryState = iota
	stateSettled
	stateCancelled
)

// entry is one in-flight request. Guarded entries hold their key's slot;
// entries created with AllowDuplicate, and Share-mode waiters, do not.
type entry struct {
	id      uint64
	key     Key
	scope   Scope
	guarded bool
	cancel  context.CancelCauseFunc

	// Protected by registry.mu.
	state entryState
	err   *CanceledError
}

// registry tracks in-flight requests by key and by scope. All fields are
// protected by mu; methods ending in Locked expect it held.
type registry struct {
	mu      sync.Mutex
	next    uint64
	closed  bool
	entries map[uint64]*entry
	byKey   map[Key]*entry
	byScope map[Scope]map[uint64]*entry
	// shared tracks Share-mode waiters per key.
	shared map[Key]*sharedKey
}

// sharedKey counts the waiters of one Share-mode flight. gen changes every
// time the key starts over, so a flight that was forgotten cannot register
// itself later.
type sharedKey struct {
	waiters int
	gen     uint64
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[uint64]*entry),
		byKey:   make(map[Key]*entry),
		byScope: make(map[Scope]map[uint64]*entry),
		shared:  make(map[Key]*sharedKey),
	}
}

func (r *registry) addLocked(e *entry) {
	r.next++
	e.id = r.next
	r.entries[e.id] = e
	if e.guarded {
		r.byKey[e.key] = e
	}
	if e.scope != "" {
		set := r.byScope[e.scope]
		if set == nil {
			set = make(map[uint64]*entry)
			r.byScope[e.scope] = set
		}
		set[e.id] = e
	}
}

func (r *registry) removeLocked(e *entry) {
	delete(r.entries, e.id)
	if e.guarded && r.byKey[e.key] == e {
		delete(r.byKey, e.key)
	}
	if set := r.byScope[e.scope]; set != nil {
		delete(set, e.id)
		if len(set) == 0 {
			delete(r.byScope, e.scope)
		}
	}
}

// cancelLocked moves a pending entry to cancelled and drops it from every
// index. The returned function fires the entry's cancellation and must be
// called after mu is released.
func (r *registry) cancelLocked(e *entry, reason CancelReason) func() {
	if e.state != statePending {
		return func() {}
	}
	e.state = stateCancelled
	e.err = &CanceledError{Key: e.key, Scope: e.scope, Reason: reason}
	r.removeLocked(e)
	return func() { e.cancel(e.err) }
}

func (r *registry) scopeEntriesLocked(scope Scope) []*entry {
	set := r.byScope[scope]
	out := make([]*entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

func (r *registry) allEntriesLocked() []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
