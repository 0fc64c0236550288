package cache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IvanBrykalov/rescache/blobstore"
	"github.com/IvanBrykalov/rescache/internal/keyset"
)

// loader runs the load pipeline (persistent-store read → fetch →
// persistent-store read → decode) off the caller's goroutine and guarantees
// at most one in-flight pipeline per key.
//
// There is no cancellation: once scheduled, a pipeline runs to completion and
// resolves its Ref exactly once, with nil on failure. Failures never escape
// the worker goroutine.
type loader struct {
	blobs   blobstore.Store
	decoder Decoder
	fetcher Fetcher
	metrics Metrics
	log     *slog.Logger

	// inflight deduplicates concurrent load requests by key. Membership is
	// keyed, not value-based: two Refs with the same key are interchangeable
	// markers.
	inflight *keyset.Set[*Ref, string]

	wg sync.WaitGroup
}

func newLoader(blobs blobstore.Store, decoder Decoder, fetcher Fetcher, metrics Metrics, log *slog.Logger) *loader {
	return &loader{
		blobs:    blobs,
		decoder:  decoder,
		fetcher:  fetcher,
		metrics:  metrics,
		log:      log,
		inflight: keyset.New(func(r *Ref) string { return r.Key() }),
	}
}

// load schedules a pipeline for ref unless its value is already valid or a
// pipeline for the same key is in flight (in which case the caller's
// subscription is satisfied by the running task).
func (l *loader) load(ref *Ref) {
	if ref == nil || ref.Valid() {
		return
	}
	if !l.inflight.Add(ref) {
		return
	}
	l.wg.Add(1)
	go l.run(ref)
}

// wait blocks until all scheduled pipelines have finished.
func (l *loader) wait() {
	l.wg.Wait()
}

func (l *loader) run(ref *Ref) {
	defer l.wg.Done()

	value, err := l.pipeline(context.Background(), ref)

	// The marker is cleared before notifying so a subscriber that just missed
	// this cycle can schedule a fresh pipeline without waiting out the old one.
	l.inflight.Remove(ref.Key())
	if err != nil {
		l.log.Error("load failed", "key", ref.Key(), "error", err)
		l.metrics.Load(false)
		ref.Resolve(nil, err)
		return
	}
	l.metrics.Load(true)
	ref.Resolve(value, nil)
}

// pipeline tries the persistent store first; on a miss or decode failure it
// invokes the fetch collaborator (per-entry override, else default) to
// populate the store, then retries the read+decode once.
func (l *loader) pipeline(ctx context.Context, ref *Ref) ([]byte, error) {
	key := ref.Key()

	if value, err := l.readAndDecode(ctx, key); err == nil {
		return value, nil
	}

	fetcher := ref.Fetcher()
	if fetcher == nil {
		fetcher = l.fetcher
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFetcher, key)
	}

	var buf bytes.Buffer
	if err := fetcher.Fetch(ctx, key, &buf); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	if err := l.blobs.Write(ctx, key, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("persist %s: %w", key, err)
	}

	value, err := l.readAndDecode(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("decode fetched %s: %w", key, err)
	}
	return value, nil
}

func (l *loader) readAndDecode(ctx context.Context, key string) ([]byte, error) {
	raw, err := l.blobs.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return l.decoder.Decode(raw)
}
