package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/rescache/blobstore"
)

// generatedKeyPrefix marks keys minted for programmatically created values,
// which have no caller-supplied identity.
const generatedKeyPrefix = "mutable:"

// cache is the facade tying the store, the loader, and the persistent store
// together. All methods are safe for concurrent use.
type cache struct {
	store  *refStore
	loader *loader
	blobs  blobstore.Store
	opt    Options
	log    *slog.Logger
	closed atomic.Bool

	// persistWG tracks fire-and-forget persistence writes so Close can drain them.
	persistWG sync.WaitGroup
}

// New constructs a Cache with the provided Options.
// Defaults:
//   - CapacityBytes <= 0 => DeriveCapacity(MemoryBudgetBytes)
//   - nil Decoder        => RawDecoder
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => logging disabled
//
// Options.Blobs is required; a nil store returns ErrNoStore.
func New(opt Options) (Cache, error) {
	if opt.Blobs == nil {
		return nil, ErrNoStore
	}
	if opt.CapacityBytes <= 0 {
		opt.CapacityBytes = DeriveCapacity(opt.MemoryBudgetBytes)
	}
	if opt.DecodeExpansionFactor <= 0 {
		opt.DecodeExpansionFactor = DefaultDecodeExpansionFactor
	}
	if opt.Decoder == nil {
		opt.Decoder = RawDecoder{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}

	c := &cache{
		store: newRefStore(opt.CapacityBytes, opt.Metrics),
		blobs: opt.Blobs,
		opt:   opt,
		log:   opt.Logger,
	}
	c.loader = newLoader(opt.Blobs, opt.Decoder, opt.Fetcher, opt.Metrics, opt.Logger)
	return c, nil
}

// ---- Cache implementation ----

func (c *cache) GetCached(key string) ([]byte, bool) {
	if key == "" || c.closed.Load() {
		return nil, false
	}
	ref, ok := c.store.get(key)
	if !ok || !ref.Valid() {
		return nil, false
	}
	return ref.Value(), true
}

func (c *cache) GetOrLoad(key string, sub Subscriber, opts ...LoadOption) error {
	if key == "" {
		return ErrEmptyKey
	}
	if sub == nil {
		return ErrNilSubscriber
	}
	if c.closed.Load() {
		return ErrClosed
	}

	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	ref, _ := c.store.getOrCreate(key)
	if lo.fetcher != nil {
		ref.SetFetcher(lo.fetcher)
	}
	if !ref.subscribeIfPending(sub) {
		sub.OnResolve(ref, nil)
		return nil
	}
	c.loader.load(ref)
	return nil
}

func (c *cache) GetOrLoadMany(keys []string, sub Subscriber) error {
	if len(keys) == 0 {
		return ErrEmptyKey
	}
	for _, key := range keys {
		if err := c.GetOrLoad(key, sub); err != nil {
			return fmt.Errorf("load %q: %w", key, err)
		}
	}
	return nil
}

func (c *cache) Put(key string, value []byte, persist bool) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return ErrNilValue
	}
	if c.closed.Load() {
		return ErrClosed
	}

	c.install(key, value)

	if persist {
		c.persistWG.Add(1)
		go func() {
			defer c.persistWG.Done()
			if err := c.blobs.Write(context.Background(), key, value); err != nil {
				c.log.Error("persist failed", "key", key, "error", err)
			}
		}()
	}
	return nil
}

func (c *cache) CreateBounded(width, height int, format PixelFormat) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidBounds
	}
	bpp := format.bytesPerPixel()
	if bpp == 0 {
		return nil, ErrInvalidFormat
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	size := int64(width) * int64(height) * bpp
	c.makeRoom(size)

	value := make([]byte, size)
	c.install(generatedKey(), value)
	return value, nil
}

func (c *cache) DecodeBounded(raw []byte, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if len(raw) == 0 {
		return nil, ErrNilValue
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	if ref, ok := c.store.get(key); ok && ref.Valid() {
		return ref.Value(), nil
	}

	// The estimate only guides the pre-emptive trim; the installed entry
	// records the actual decoded size.
	estimate := int64(len(raw)) * int64(c.opt.DecodeExpansionFactor)
	c.makeRoom(estimate)

	value, err := c.opt.Decoder.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	c.install(key, value)
	return value, nil
}

func (c *cache) EvictAll() {
	c.store.evictAll()
}

func (c *cache) DeleteCached(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return ErrEmptyKey
	}
	for _, key := range keys {
		if key == "" {
			return ErrEmptyKey
		}
		if err := c.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("cache: delete %q: %w", key, err)
		}
	}
	return nil
}

func (c *cache) DeleteAll(ctx context.Context) error {
	return c.blobs.DeleteAll(ctx)
}

func (c *cache) CacheSize() int64 {
	return c.store.size()
}

func (c *cache) EntryCount() int {
	return c.store.len()
}

func (c *cache) PersistedFileCount(ctx context.Context) (int, error) {
	return c.blobs.Count(ctx)
}

// Close marks the cache closed and drains worker goroutines. Entries stay
// resident; use EvictAll to release them.
func (c *cache) Close() error {
	c.closed.Store(true)
	c.loader.wait()
	c.persistWG.Wait()
	return nil
}

// ---- helpers ----

// install puts a pre-resolved entry into the store.
func (c *cache) install(key string, value []byte) {
	ref := newRef(key)
	ref.Resolve(value, nil)
	c.store.put(key, ref)
}

// makeRoom pre-emptively trims the store so an insert of the given size
// cannot breach the capacity.
func (c *cache) makeRoom(size int64) {
	if c.store.size()+size > c.opt.CapacityBytes {
		c.store.trimToSize(c.opt.CapacityBytes - size)
	}
}

// generatedKey mints a key for values created in-process (no caller identity).
func generatedKey() string {
	return generatedKeyPrefix + uuid.NewString()
}
