package cache

import "errors"

// Input-validation errors are returned synchronously, before any side effect.
var (
	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = errors.New("cache: empty key")

	// ErrNilSubscriber is returned by GetOrLoad when no subscriber is given.
	ErrNilSubscriber = errors.New("cache: nil subscriber")

	// ErrNilValue is returned by Put when the value is empty.
	ErrNilValue = errors.New("cache: nil or empty value")

	// ErrInvalidBounds is returned by CreateBounded for non-positive dimensions.
	ErrInvalidBounds = errors.New("cache: width and height must be > 0")

	// ErrInvalidFormat is returned by CreateBounded for an unknown pixel format.
	ErrInvalidFormat = errors.New("cache: unknown pixel format")

	// ErrNoStore is returned by New when Options.Blobs is nil.
	ErrNoStore = errors.New("cache: no blob store provided")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")
)

// Load-pipeline errors surface through subscriber notification, never as a
// call result of GetOrLoad.
var (
	// ErrNoFetcher reports a miss with neither a default nor per-entry fetcher.
	ErrNoFetcher = errors.New("cache: no fetcher for key")

	// ErrEmptyBlob reports a decode attempt on an empty blob.
	ErrEmptyBlob = errors.New("cache: empty blob")
)
