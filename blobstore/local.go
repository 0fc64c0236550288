package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// LocalStore implements Store on the local filesystem. All blobs live
// directly under the root directory, confined there by the name derivation
// (names never contain path separators). Writes are atomic: data goes to a
// temp file which is renamed into place.
type LocalStore struct {
	root      string
	namespace string
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithNamespace overrides the blob-name prefix for this store.
func WithNamespace(ns string) LocalOption {
	return func(s *LocalStore) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithCompression enables transparent zstd compression of stored blobs.
// Reads decompress; blobs written without compression are not readable by a
// compressing store and vice versa.
func WithCompression() LocalOption {
	return func(s *LocalStore) {
		// These constructors only fail for invalid options; defaults are valid.
		s.enc, _ = zstd.NewWriter(nil)
		s.dec, _ = zstd.NewReader(nil)
	}
}

// NewLocalStore creates a filesystem store rooted at dir.
// The directory is resolved to an absolute path and created if missing.
func NewLocalStore(dir string, opts ...LocalOption) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blobstore: empty root directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}

	s := &LocalStore{root: abs, namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the deterministic blob name for key.
func (s *LocalStore) Name(key string) string {
	return blobName(s.namespace, key)
}

// Exists reports whether a blob for key is present on disk.
func (s *LocalStore) Exists(_ context.Context, key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Read returns the blob contents, decompressing when compression is enabled.
func (s *LocalStore) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: read %s: %w", s.Name(key), err)
	}
	if s.dec != nil {
		plain, err := s.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: decompress %s: %w", s.Name(key), err)
		}
		return plain, nil
	}
	return data, nil
}

// Write stores data atomically: temp file in the same directory, then rename.
func (s *LocalStore) Write(_ context.Context, key string, data []byte) error {
	if s.enc != nil {
		data = s.enc.EncodeAll(data, nil)
	}

	tmp, err := os.CreateTemp(s.root, s.Name(key)+".tmp*")
	if err != nil {
		return fmt.Errorf("blobstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: write %s: %w", s.Name(key), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: close %s: %w", s.Name(key), err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: commit %s: %w", s.Name(key), err)
	}
	return nil
}

// Delete removes the blob for key.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("blobstore: delete %s: %w", s.Name(key), err)
	}
	return nil
}

// Count returns the number of namespace-prefixed blobs under the root.
func (s *LocalStore) Count(_ context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("blobstore: list root: %w", err)
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && s.owned(e.Name()) {
			count++
		}
	}
	return count, nil
}

// DeleteAll removes every namespace-prefixed blob under the root.
func (s *LocalStore) DeleteAll(_ context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("blobstore: list root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !s.owned(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("blobstore: delete %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, s.Name(key))
}

// owned reports whether a directory entry belongs to this store's namespace.
// Leftover temp files are not counted as blobs.
func (s *LocalStore) owned(name string) bool {
	return strings.HasPrefix(name, s.namespace) && !strings.Contains(name, ".tmp")
}

var _ Store = (*LocalStore)(nil)
