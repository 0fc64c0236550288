package cache

import (
	"context"
	"io"
	"log/slog"

	"github.com/IvanBrykalov/rescache/blobstore"
)

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictCapacity: removed to restore totalBytes <= capacityBytes after a put.
	EvictCapacity EvictReason = iota
	// EvictTrim: removed by a pre-emptive trimToSize headroom pass.
	EvictTrim
	// EvictReplaced: displaced by a different entry under the same key.
	EvictReplaced
	// EvictExplicit: removed by EvictAll.
	EvictExplicit
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
	Load(ok bool)
}

// Decoder turns raw persisted bytes into the cacheable payload.
// Actual pixel/image decoding lives behind this capability.
type Decoder interface {
	Decode(data []byte) ([]byte, error)
}

// RawDecoder is the default Decoder: it returns the input unchanged,
// rejecting empty blobs.
type RawDecoder struct{}

// Decode implements Decoder.
func (RawDecoder) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBlob
	}
	return data, nil
}

// Fetcher populates the persistent-store location for a key by writing the
// raw bytes to dst. The loader invokes it when the persistent store has no
// blob for the key (or the stored blob fails to decode).
type Fetcher interface {
	Fetch(ctx context.Context, key string, dst io.Writer) error
}

const (
	// MinCapacityBytes is the floor applied to derived capacities (4 MiB).
	MinCapacityBytes = 4 << 20

	// DefaultDecodeExpansionFactor is the pessimistic multiplier applied to
	// raw input length when estimating decoded size in DecodeBounded.
	// Compressed image formats can inflate up to ~20x once decoded into raw
	// pixels.
	DefaultDecodeExpansionFactor = 20
)

// DeriveCapacity converts an available-memory budget into a cache capacity:
// 25% of the budget with a MinCapacityBytes floor.
func DeriveCapacity(budgetBytes int64) int64 {
	c := budgetBytes / 4
	if c < MinCapacityBytes {
		return MinCapacityBytes
	}
	return c
}

// Options configures the cache. Zero values get sane defaults in New():
//   - CapacityBytes <= 0 => derived from MemoryBudgetBytes (floor 4 MiB)
//   - nil Decoder        => RawDecoder
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => logging disabled
//   - DecodeExpansionFactor <= 0 => DefaultDecodeExpansionFactor
//
// Blobs is required. Fetcher may be nil when every load either hits the
// persistent store or supplies a per-call override; a load with no fetch
// collaborator and no stored blob resolves as a failure.
type Options struct {
	// CapacityBytes is the fixed byte budget of the in-memory store.
	CapacityBytes int64

	// MemoryBudgetBytes is used to derive CapacityBytes when it is unset.
	MemoryBudgetBytes int64

	// DecodeExpansionFactor scales raw input length when DecodeBounded
	// estimates an upper bound for the decoded size.
	DecodeExpansionFactor int

	// Blobs is the persistent store backing loads and Put(..., persist=true).
	Blobs blobstore.Store

	// Decoder turns persisted bytes into payloads.
	Decoder Decoder

	// Fetcher is the default fetch collaborator for cache misses.
	Fetcher Fetcher

	// Metrics receives Hit/Miss/Evict/Size/Load signals.
	Metrics Metrics

	// Logger records load and persistence failures. Nil disables logging.
	Logger *slog.Logger
}
