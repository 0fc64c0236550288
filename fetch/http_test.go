package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("resource body"))
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPFetcher(WithUserAgent("rescache-test/1.0"))

	var buf bytes.Buffer
	require.NoError(t, f.Fetch(context.Background(), srv.URL, &buf))
	require.Equal(t, "resource body", buf.String())
	require.Equal(t, "rescache-test/1.0", gotUA)
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	err := NewHTTPFetcher().Fetch(context.Background(), srv.URL, &buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
	require.Zero(t, buf.Len())
}

func TestHTTPFetcher_ContextCancellation(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewHTTPFetcher().Fetch(ctx, srv.URL, &buf)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := NewHTTPFetcher().Fetch(context.Background(), "://not-a-url", &buf)
	require.Error(t, err)
}
