// Package blobstore provides durable byte-blob storage keyed by cache keys.
// Each implementation derives a deterministic, namespace-prefixed blob name
// from the key, so arbitrary keys (typically URLs) map to safe storage names
// and bulk operations can be restricted to blobs owned by one cache.
package blobstore

import (
	"context"
	"os"
	"strconv"

	"github.com/IvanBrykalov/rescache/internal/util"
)

// DefaultNamespace prefixes every blob name unless overridden per store.
const DefaultNamespace = "rescache"

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is the persistent-store capability consumed by the cache: durable
// raw-byte blobs addressed by cache key. All methods are safe for concurrent
// use by multiple goroutines.
type Store interface {
	// Name returns the deterministic blob name derived from key.
	// The result is stable across processes and carries the store namespace.
	Name(key string) string

	// Exists reports whether a blob for key is present.
	Exists(ctx context.Context, key string) bool

	// Read returns the full contents of the blob for key,
	// or ErrNotFound if no blob exists.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores data under key's blob name, replacing any previous blob.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes the blob for key. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// Count returns the number of blobs bearing this store's namespace.
	Count(ctx context.Context) (int, error)

	// DeleteAll removes every blob bearing this store's namespace.
	// Blobs written by other namespaces are left untouched.
	DeleteAll(ctx context.Context) error
}

// blobName derives the storage name for key: the namespace prefix followed
// by the hexadecimal FNV-1a hash of the key.
func blobName(namespace, key string) string {
	return namespace + strconv.FormatUint(util.Fnv64a(key), 16)
}
