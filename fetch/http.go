// Package fetch provides fetch collaborators that populate the persistent
// store for cache keys.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout bounds a single fetch when the caller's context carries no
// deadline.
const defaultTimeout = 30 * time.Second

// HTTPFetcher implements cache.Fetcher for URL keys: it downloads the key
// over HTTP(S) and streams the response body to the destination.
// Safe for concurrent use.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient substitutes the HTTP client (default: http.Client with a 30s
// timeout).
func WithClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// NewHTTPFetcher creates a fetcher that treats cache keys as URLs.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads key as a URL and writes the body to dst.
// Non-2xx statuses are failures; nothing is written to dst in that case.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request for %q: %w", key, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: get %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch: get %q: unexpected status %s", key, resp.Status)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("fetch: read %q body: %w", key, err)
	}
	return nil
}
