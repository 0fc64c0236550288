package cache

import "sync"

// refStore is a byte-size-bounded associative store with LRU eviction and
// dynamic size accounting. Its map, recency list, and byte counter form one
// unit of mutual exclusion: every operation runs under mu so the accounting
// stays exact under concurrent use.
//
// The recency structure is an intrusive doubly linked list (head=MRU,
// tail=LRU); all operations are O(1) expected.
type refStore struct {
	// ---- guarded by mu ----
	mu    sync.Mutex
	m     map[string]*storeNode
	head  *storeNode // MRU
	tail  *storeNode // LRU
	total int64      // sum of recorded sizes over resident entries
	cap   int64      // fixed capacity in bytes

	metrics Metrics

	// observer is the store-owned sticky subscriber armed on every entry
	// minted by getOrCreate; it re-puts the entry when it resolves so the
	// size accounting follows asynchronous resolutions.
	observer Subscriber
}

// storeNode is an intrusive list element owned by the store. size is the
// entry's byte size as recorded at the last put; deltas against it keep the
// total exact when an entry resolves to a different size in place.
type storeNode struct {
	key  string
	ref  *Ref
	size int64

	prev, next *storeNode
}

func newRefStore(capacityBytes int64, metrics Metrics) *refStore {
	s := &refStore{
		m:       make(map[string]*storeNode),
		cap:     capacityBytes,
		metrics: metrics,
	}
	s.observer = &storeObserver{store: s}
	return s
}

// storeObserver re-inserts a resolved entry under its key, refreshing the
// recorded size. It is the sticky subscriber of every observed entry.
type storeObserver struct {
	store *refStore
}

func (o *storeObserver) OnResolve(ref *Ref, _ error) {
	o.store.put(ref.Key(), ref)
}

// get returns the entry for key, promoting it to MRU. Size is not mutated.
func (s *refStore) get(key string) (*Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		s.metrics.Miss()
		return nil, false
	}
	s.moveToFront(n)
	s.metrics.Hit()
	return n.ref, true
}

// getOrCreate returns the entry for key, inserting a pending observed entry
// when absent. Lookup and insert share one critical section so concurrent
// callers for the same key always end up on the same Ref; a pending entry has
// recorded size zero until its resolution re-puts it.
func (s *refStore) getOrCreate(key string) (*Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[key]; ok {
		s.moveToFront(n)
		s.metrics.Hit()
		return n.ref, true
	}
	s.metrics.Miss()

	ref := newRef(key)
	ref.SetSticky(s.observer)
	n := &storeNode{key: key, ref: ref}
	s.m[key] = n
	s.pushFront(n)
	s.metrics.Size(len(s.m), s.total)
	return ref, false
}

// put inserts or replaces the entry at key and restores the capacity
// invariant. Replacement applies the delta against the old recorded size
// rather than recomputing, so an in-place resize (the same Ref re-put after
// resolving) is counted exactly once. A replaced entry of different identity
// goes through the removal hook.
func (s *refStore) put(key string, ref *Ref) {
	size := ref.CurrentSize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[key]; ok {
		old := n.ref
		s.total += size - n.size
		n.size = size
		n.ref = ref
		s.moveToFront(n)
		if old != ref {
			s.entryRemoved(old, EvictReplaced)
		}
	} else {
		n := &storeNode{key: key, ref: ref, size: size}
		s.m[key] = n
		s.pushFront(n)
		s.total += size
	}

	s.evictUntil(s.cap, EvictCapacity)
	s.metrics.Size(len(s.m), s.total)
}

// trimToSize evicts LRU entries until total <= targetBytes. A negative
// target empties the store. Used for pre-emptive headroom before
// caller-estimated inserts.
func (s *refStore) trimToSize(targetBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictUntil(targetBytes, EvictTrim)
	s.metrics.Size(len(s.m), s.total)
}

// evictAll removes every entry, invoking the removal hook on each.
func (s *refStore) evictAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.tail != nil {
		s.evictNode(s.tail, EvictExplicit)
	}
	s.metrics.Size(len(s.m), s.total)
}

// size returns the tracked total byte size.
func (s *refStore) size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// len returns the number of resident entries.
func (s *refStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// -------------------- internals (mu held) --------------------

// evictUntil removes LRU entries, oldest first, until total <= limit or the
// store is empty.
func (s *refStore) evictUntil(limit int64, reason EvictReason) {
	for s.total > limit && s.tail != nil {
		s.evictNode(s.tail, reason)
	}
}

// evictNode unlinks n, fixes the counters, and runs the removal hook.
func (s *refStore) evictNode(n *storeNode, reason EvictReason) {
	s.removeNode(n)
	delete(s.m, n.key)
	s.entryRemoved(n.ref, reason)
}

// entryRemoved is the removal hook: it recycles the outgoing entry so it
// releases its value and can no longer fire stale notifications.
func (s *refStore) entryRemoved(ref *Ref, reason EvictReason) {
	ref.Recycle()
	s.metrics.Evict(reason)
}

// pushFront inserts n at MRU in O(1).
func (s *refStore) pushFront(n *storeNode) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// moveToFront promotes n to MRU in O(1).
func (s *refStore) moveToFront(n *storeNode) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n from the list and updates the byte counter in O(1).
func (s *refStore) removeNode(n *storeNode) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.total -= n.size
	if s.total < 0 {
		s.total = 0
	}
}
