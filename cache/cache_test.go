package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/rescache/blobstore"
)

// waitSub collects notifications and signals each one on a channel.
type waitSub struct {
	mu   sync.Mutex
	refs []*Ref
	errs []error
	vals [][]byte
	done chan struct{}
}

func newWaitSub() *waitSub {
	return &waitSub{done: make(chan struct{}, 32)}
}

func (s *waitSub) OnResolve(ref *Ref, err error) {
	s.mu.Lock()
	s.refs = append(s.refs, ref)
	s.errs = append(s.errs, err)
	s.vals = append(s.vals, ref.Value())
	s.mu.Unlock()
	s.done <- struct{}{}
}

func (s *waitSub) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification %d/%d", i+1, n)
		}
	}
}

func (s *waitSub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// fakeFetcher writes canned data (or fails) and counts invocations.
// A non-nil gate blocks Fetch until the gate is closed.
type fakeFetcher struct {
	data  []byte
	err   error
	gate  chan struct{}
	calls int64
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, dst io.Writer) error {
	atomic.AddInt64(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return f.err
	}
	_, err := dst.Write(f.data)
	return err
}

func (f *fakeFetcher) callCount() int64 { return atomic.LoadInt64(&f.calls) }

func newTestCache(t *testing.T, opt Options) Cache {
	t.Helper()
	if opt.Blobs == nil {
		opt.Blobs = blobstore.NewMemoryStore()
	}
	if opt.CapacityBytes == 0 {
		opt.CapacityBytes = 1 << 20
	}
	c, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Two subscribers register for the same key before the load completes:
// exactly one pipeline runs, both are notified once with the same value.
func TestCache_GetOrLoad_Coalesces(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{data: []byte("payload"), gate: make(chan struct{})}
	c := newTestCache(t, Options{Fetcher: fetcher})

	sub1 := newWaitSub()
	sub2 := newWaitSub()

	if err := c.GetOrLoad("X", sub1); err != nil {
		t.Fatal(err)
	}
	if err := c.GetOrLoad("X", sub2); err != nil {
		t.Fatal(err)
	}
	close(fetcher.gate)

	sub1.wait(t, 1)
	sub2.wait(t, 1)

	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("exactly one pipeline must run, got %d fetches", got)
	}
	if sub1.count() != 1 || sub2.count() != 1 {
		t.Fatalf("each subscriber fires once, got %d/%d", sub1.count(), sub2.count())
	}
	if !bytes.Equal(sub1.vals[0], []byte("payload")) || !bytes.Equal(sub2.vals[0], []byte("payload")) {
		t.Fatal("both subscribers must see the same resolved value")
	}
}

// A persisted value survives into a fresh cache without touching the fetcher.
func TestCache_PersistedValueSkipsFetch(t *testing.T) {
	t.Parallel()

	blobs := blobstore.NewMemoryStore()

	first := newTestCache(t, Options{Blobs: blobs})
	if err := first.Put("Y", []byte("durable"), true); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil { // drains the background persist
		t.Fatal(err)
	}

	fetcher := &fakeFetcher{err: errors.New("must not be called")}
	fresh := newTestCache(t, Options{Blobs: blobs, Fetcher: fetcher})

	sub := newWaitSub()
	if err := fresh.GetOrLoad("Y", sub); err != nil {
		t.Fatal(err)
	}
	sub.wait(t, 1)

	if sub.errs[0] != nil {
		t.Fatalf("load must succeed from the persistent store: %v", sub.errs[0])
	}
	if !bytes.Equal(sub.vals[0], []byte("durable")) {
		t.Fatalf("value mismatch: %q", sub.vals[0])
	}
	if got := fetcher.callCount(); got != 0 {
		t.Fatalf("fetcher must never be invoked, got %d calls", got)
	}
}

// Store miss plus fetch failure: subscriber sees an absent value, the entry
// stays accounted, and the in-flight marker is cleared so a retry is allowed.
func TestCache_LoadFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("network down")
	fetcher := &fakeFetcher{err: fetchErr}
	c := newTestCache(t, Options{Fetcher: fetcher})

	sub := newWaitSub()
	if err := c.GetOrLoad("Z", sub); err != nil {
		t.Fatal(err)
	}
	sub.wait(t, 1)

	if sub.errs[0] == nil || !errors.Is(sub.errs[0], fetchErr) {
		t.Fatalf("subscriber must see the failure, got %v", sub.errs[0])
	}
	if sub.vals[0] != nil {
		t.Fatalf("failed load must deliver an absent value, got %q", sub.vals[0])
	}
	if got := c.EntryCount(); got != 1 {
		t.Fatalf("the resolved-empty entry stays resident, got %d entries", got)
	}

	// The dedup marker is gone: a second attempt runs a fresh pipeline.
	retry := newWaitSub()
	if err := c.GetOrLoad("Z", retry); err != nil {
		t.Fatal(err)
	}
	retry.wait(t, 1)
	if got := fetcher.callCount(); got != 2 {
		t.Fatalf("retry must run a new pipeline, got %d fetches", got)
	}
}

// A hit with a valid value notifies the subscriber synchronously.
func TestCache_HitNotifiesSynchronously(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{})
	if err := c.Put("hot", []byte("v"), false); err != nil {
		t.Fatal(err)
	}

	sub := newWaitSub()
	if err := c.GetOrLoad("hot", sub); err != nil {
		t.Fatal(err)
	}
	// No wait: the notification must already have happened.
	if sub.count() != 1 {
		t.Fatalf("hit must notify synchronously, got %d calls", sub.count())
	}
	if sub.errs[0] != nil {
		t.Fatalf("hit carries no error, got %v", sub.errs[0])
	}
}

// Per-call fetcher override takes precedence over the default collaborator.
func TestCache_FetcherOverride(t *testing.T) {
	t.Parallel()

	def := &fakeFetcher{data: []byte("default")}
	override := &fakeFetcher{data: []byte("override")}
	c := newTestCache(t, Options{Fetcher: def})

	sub := newWaitSub()
	if err := c.GetOrLoad("K", sub, WithFetcher(override)); err != nil {
		t.Fatal(err)
	}
	sub.wait(t, 1)

	if got := def.callCount(); got != 0 {
		t.Fatalf("default fetcher must be bypassed, got %d calls", got)
	}
	if !bytes.Equal(sub.vals[0], []byte("override")) {
		t.Fatalf("value must come from the override, got %q", sub.vals[0])
	}
}

func TestCache_GetCachedNeverLoads(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{data: []byte("x")}
	c := newTestCache(t, Options{Fetcher: fetcher})

	if _, ok := c.GetCached("absent"); ok {
		t.Fatal("miss expected")
	}
	if got := fetcher.callCount(); got != 0 {
		t.Fatalf("GetCached must not trigger loads, got %d", got)
	}
}

func TestCache_CreateBoundedValidation(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{})

	if _, err := c.CreateBounded(0, 10, FormatARGB8888); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("want ErrInvalidBounds, got %v", err)
	}
	if got := c.EntryCount(); got != 0 {
		t.Fatalf("failed create must not mutate the store, got %d entries", got)
	}
	if _, err := c.CreateBounded(10, 10, PixelFormat(99)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("want ErrInvalidFormat, got %v", err)
	}
}

// CreateBounded computes the exact size and trims for headroom first.
func TestCache_CreateBoundedTrimsForHeadroom(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{CapacityBytes: 10_000})
	if err := c.Put("old", make([]byte, 8000), false); err != nil {
		t.Fatal(err)
	}

	buf, err := c.CreateBounded(50, 40, FormatARGB8888) // 50*40*4 = 8000 bytes
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 8000 {
		t.Fatalf("buffer size want 8000, got %d", len(buf))
	}
	if _, ok := c.GetCached("old"); ok {
		t.Fatal("old entry must be trimmed away for headroom")
	}
	if got := c.CacheSize(); got > 10_000 {
		t.Fatalf("capacity invariant broken: %d", got)
	}
}

// DecodeBounded trims for the pessimistic estimate but records actual size.
func TestCache_DecodeBoundedRecordsActualSize(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{CapacityBytes: 100_000, DecodeExpansionFactor: 20})

	raw := make([]byte, 100) // estimate 2000, actual 100 with RawDecoder
	v, err := c.DecodeBounded(raw, "img")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 100 {
		t.Fatalf("decoded size want 100, got %d", len(v))
	}
	if got := c.CacheSize(); got != 100 {
		t.Fatalf("recorded size must be actual, not the estimate: %d", got)
	}

	// A second decode of the same key is a cache hit.
	again, err := c.DecodeBounded(raw, "img")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, v) {
		t.Fatal("repeated decode must return the cached value")
	}
}

func TestCache_DeleteCachedAndCounts(t *testing.T) {
	t.Parallel()

	blobs := blobstore.NewMemoryStore()
	c := newTestCache(t, Options{Blobs: blobs})
	ctx := context.Background()

	if err := c.Put("a", []byte("1"), true); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("b", []byte("2"), true); err != nil {
		t.Fatal(err)
	}
	// Drain the async persists before counting.
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	n, err := c.PersistedFileCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("persisted count want 2, got %d", n)
	}

	// Deleting a present and an absent blob: the absent one is a no-op.
	if err := c.DeleteCached(ctx, "a", "never-persisted"); err != nil {
		t.Fatal(err)
	}
	if n, _ = c.PersistedFileCount(ctx); n != 1 {
		t.Fatalf("persisted count want 1, got %d", n)
	}

	if err := c.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ = c.PersistedFileCount(ctx); n != 0 {
		t.Fatalf("persisted count want 0, got %d", n)
	}

	if err := c.DeleteCached(ctx); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("empty key list must be rejected, got %v", err)
	}
}

func TestCache_InputValidation(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options{})
	sub := newWaitSub()

	if err := c.GetOrLoad("", sub); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("want ErrEmptyKey, got %v", err)
	}
	if err := c.GetOrLoad("k", nil); !errors.Is(err, ErrNilSubscriber) {
		t.Fatalf("want ErrNilSubscriber, got %v", err)
	}
	if err := c.Put("", []byte("v"), false); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("want ErrEmptyKey, got %v", err)
	}
	if err := c.Put("k", nil, false); !errors.Is(err, ErrNilValue) {
		t.Fatalf("want ErrNilValue, got %v", err)
	}
	if _, err := New(Options{}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("want ErrNoStore, got %v", err)
	}
}

func TestCache_GetOrLoadMany(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{data: []byte("v")}
	c := newTestCache(t, Options{Fetcher: fetcher})
	if err := c.Put("warm", []byte("w"), false); err != nil {
		t.Fatal(err)
	}

	sub := newWaitSub()
	if err := c.GetOrLoadMany([]string{"warm", "cold1", "cold2"}, sub); err != nil {
		t.Fatal(err)
	}
	sub.wait(t, 3)

	if got := sub.count(); got != 3 {
		t.Fatalf("want 3 notifications, got %d", got)
	}
}

func TestDeriveCapacity(t *testing.T) {
	t.Parallel()

	if got := DeriveCapacity(0); got != MinCapacityBytes {
		t.Fatalf("zero budget must floor at 4 MiB, got %d", got)
	}
	if got := DeriveCapacity(8 << 20); got != MinCapacityBytes {
		t.Fatalf("small budget must floor at 4 MiB, got %d", got)
	}
	if got := DeriveCapacity(1 << 30); got != 1<<28 {
		t.Fatalf("want 25%% of budget, got %d", got)
	}
}
