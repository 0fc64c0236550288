// Package cache provides a memory-bounded cache for keyed binary resources
// (e.g. decoded images) with asynchronous, coalesced loading: values are
// pulled from a persistent blob store or a pluggable fetch collaborator,
// concurrent requests for the same key share one load, and least-recently-used
// entries are evicted once the byte budget is exceeded.
//
// # Design
//
//   - Storage: one mutex guards a map[key]*node plus an intrusive MRU↔LRU
//     doubly linked list and the total-byte counter, so size accounting stays
//     exact under concurrent use. All store operations are O(1) expected.
//
//   - Entries: a Ref associates a key with a value that may not exist yet.
//     Subscribers are notified exactly once per resolution, in subscription
//     order; the store arms itself as a "sticky" subscriber of every loaded
//     entry so its accounting follows resolutions that happen asynchronously.
//
//   - Loading: GetOrLoad never blocks the caller. The loader keeps an
//     in-flight set keyed by cache key with atomic add-if-absent semantics;
//     at most one pipeline (store read → fetch → store read → decode) runs
//     per key, on its own goroutine. Failures resolve the entry with a nil
//     value; no retry, no propagation past the worker.
//
//   - Eviction: fully deterministic and capacity-driven. Inserts restore the
//     invariant totalBytes <= capacityBytes; CreateBounded/DecodeBounded trim
//     pre-emptively so in-process allocations always fit.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Load signals.
//     NoopMetrics is the default; metrics/prom exports Prometheus collectors.
//
// # Basic usage
//
//	blobs, _ := blobstore.NewLocalStore(dir)
//	c, _ := cache.New(cache.Options{
//	    CapacityBytes: 64 << 20,
//	    Blobs:         blobs,
//	    Fetcher:       fetch.NewHTTPFetcher(),
//	})
//	defer c.Close()
//
//	c.GetOrLoad("https://example.com/a.png", sub) // sub.OnResolve fires when ready
//	if v, ok := c.GetCached("https://example.com/a.png"); ok {
//	    _ = v
//	}
//
// # Direct installs
//
//	c.Put("key", payload, true)           // cache + persist in background
//	buf, _ := c.CreateBounded(640, 480, cache.FormatARGB8888)
//	v, _ := c.DecodeBounded(raw, "key2")  // trims for a pessimistic estimate first
package cache
