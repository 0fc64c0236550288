package cache

import "context"

// Cache is a memory-bounded cache for keyed binary resources that loads
// values asynchronously, deduplicates concurrent requests for the same key,
// and evicts least-recently-used entries once its byte budget is exceeded.
// All methods are safe for concurrent use by multiple goroutines.
type Cache interface {
	// GetCached returns the value for key if resident and resolved.
	// It never triggers a load.
	GetCached(key string) ([]byte, bool)

	// GetOrLoad delivers the value for key to sub. On a hit with a valid
	// value, sub is invoked synchronously with a nil error. On a miss the
	// load pipeline is scheduled and GetOrLoad returns immediately; sub is
	// notified from a worker goroutine once the entry resolves (with a nil
	// value and non-nil error on load failure; there is no automatic retry).
	//
	// Concurrent GetOrLoad calls for the same key share one pipeline
	// execution; each call's subscriber is notified once.
	GetOrLoad(key string, sub Subscriber, opts ...LoadOption) error

	// GetOrLoadMany registers sub for every key, mixing synchronous
	// notifications for resident entries with asynchronous ones for misses.
	GetOrLoadMany(keys []string, sub Subscriber) error

	// Put directly installs a resolved entry. With persist set, the value is
	// additionally written to the persistent store from a background
	// goroutine; write failures are logged and swallowed (the in-memory
	// entry stays correct, only durability is affected).
	Put(key string, value []byte, persist bool) error

	// CreateBounded allocates a zeroed value of exactly
	// width*height*bytesPerPixel(format) bytes, trimming the store first so
	// the allocation fits the capacity, and installs it under a generated
	// key. Non-positive dimensions are an input-validation error with no
	// side effects.
	CreateBounded(width, height int, format PixelFormat) ([]byte, error)

	// DecodeBounded decodes raw into a value and installs it under key.
	// Because the decoded size is unknown upfront, the store is trimmed for
	// a pessimistic estimate (len(raw) * DecodeExpansionFactor) before
	// decoding; the installed entry records the actual size.
	DecodeBounded(raw []byte, key string) ([]byte, error)

	// EvictAll removes every in-memory entry. Persisted blobs are untouched.
	EvictAll()

	// DeleteCached removes the persisted blobs for the given keys. A missing
	// blob is not an error; a blob that exists but cannot be removed fails
	// the call without affecting other entries.
	DeleteCached(ctx context.Context, keys ...string) error

	// DeleteAll removes every persisted blob in this cache's namespace.
	DeleteAll(ctx context.Context) error

	// CacheSize returns the tracked in-memory total in bytes.
	CacheSize() int64

	// EntryCount returns the number of resident in-memory entries.
	EntryCount() int

	// PersistedFileCount returns the number of persisted blobs in this
	// cache's namespace. This is not necessarily the number of resident
	// entries.
	PersistedFileCount(ctx context.Context) (int, error)

	// Close marks the cache closed and waits for in-flight load pipelines
	// and background persistence writes to finish.
	Close() error
}

// LoadOption customizes a single GetOrLoad call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	fetcher Fetcher
}

// WithFetcher substitutes f for the default fetch collaborator on this
// entry's load.
func WithFetcher(f Fetcher) LoadOption {
	return func(o *loadOptions) {
		o.fetcher = f
	}
}
