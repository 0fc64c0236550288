package cache

import "sync"

// Subscriber observes the resolution of a Ref. OnResolve is invoked exactly
// once per resolution cycle, from the resolving goroutine, with the resolved
// Ref and the load failure (nil on success).
//
// Implementations must be comparable values or pointers: sticky-subscriber
// replacement and deduplication rely on == identity.
type Subscriber interface {
	OnResolve(ref *Ref, err error)
}

// Ref associates a cache key with a value that may not exist yet and fans out
// a one-shot notification to interested parties once it does. A Ref starts
// pending, transitions to resolved via Resolve, and may be re-resolved when
// reused as a live entry (e.g. overwritten in place).
//
// The subscriber list and value are mutated from both caller and worker
// goroutines; all state is serialized through one mutex. Notification
// snapshots and clears the transient subscriber list atomically with respect
// to concurrent AddSubscriber calls, then dispatches outside the lock.
type Ref struct {
	key string

	mu       sync.Mutex
	value    []byte
	resolved bool
	current  int64
	previous int64
	subs     []Subscriber
	sticky   Subscriber
	fetcher  Fetcher
}

// newRef creates a pending Ref for key. The key must be validated (non-empty)
// by the caller; every construction site goes through the facade which does.
func newRef(key string) *Ref {
	return &Ref{key: key}
}

// Key returns the immutable identifier of this Ref.
func (r *Ref) Key() string { return r.key }

// Value returns the resolved payload, or nil while pending or after a failed
// resolution.
func (r *Ref) Value() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Valid reports whether the Ref holds a resolved, non-empty value.
func (r *Ref) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved && len(r.value) > 0
}

// CurrentSize returns the byte size of the value as of the last resolution.
func (r *Ref) CurrentSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// PreviousSize returns the byte size immediately before the last resolution.
func (r *Ref) PreviousSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous
}

// SetFetcher sets a per-entry fetch collaborator used instead of the default.
func (r *Ref) SetFetcher(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetcher = f
}

// Fetcher returns the per-entry fetch override, or nil.
func (r *Ref) Fetcher() Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetcher
}

// AddSubscriber appends s to the transient subscriber list. Subscribers are
// notified in subscription order, at most once per resolution, then removed.
//
// If the Ref is already resolved there is no retroactive notification: the
// caller is responsible for checking Valid/Value right after subscribing.
func (r *Ref) AddSubscriber(s Subscriber) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
}

// subscribeIfPending atomically appends s unless the Ref already holds a
// valid value. It reports whether the subscription was recorded; on false the
// caller notifies s itself. The atomicity closes the window where a check of
// Valid followed by AddSubscriber could straddle a concurrent Resolve and
// strand the subscriber.
func (r *Ref) subscribeIfPending(s Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved && len(r.value) > 0 {
		return false
	}
	r.subs = append(r.subs, s)
	return true
}

// SetSticky installs s as the persistent subscriber: it is re-armed after
// every notification cycle. Any previous sticky subscriber is removed from
// the transient list; the new one joins it to receive the next notification.
func (r *Ref) SetSticky(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sticky != nil {
		if r.sticky == s {
			return
		}
		for i, sub := range r.subs {
			if sub == r.sticky {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
	}
	r.sticky = s
	if s != nil {
		r.subs = append(r.subs, s)
	}
}

// Resolve stores value, updates the size bookkeeping, and notifies every
// current subscriber exactly once in subscription order, passing cause
// (nil on success). The transient list is cleared during the same critical
// section; the sticky subscriber is re-added for the next cycle.
//
// A nil or empty value signals load failure; subscribers must inspect cause
// or Valid to distinguish it from a successful resolution.
func (r *Ref) Resolve(value []byte, cause error) {
	r.mu.Lock()
	r.previous = r.current
	r.current = int64(len(value))
	r.value = value
	r.resolved = true

	notify := r.subs
	r.subs = nil
	if r.sticky != nil {
		r.subs = append(r.subs, r.sticky)
	}
	r.mu.Unlock()

	// Dispatch outside the lock: the store's sticky observer re-enters the
	// store, and store methods read this Ref under their own lock.
	for _, s := range notify {
		s.OnResolve(r, cause)
	}
}

// Recycle clears sticky and transient subscribers and releases the value,
// allowing memory reclamation and preventing stale notifications. Called by
// the store's removal hook when the Ref leaves the store.
func (r *Ref) Recycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sticky = nil
	r.subs = nil
	r.value = nil
}
