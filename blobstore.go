package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore holds uploaded media under slash-separated keys.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (url string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var errInvalidKey = errors.New("invalid blob key")

// fsBlobStore keeps blobs as files under root and serves them at /media/.
type fsBlobStore struct {
	root    string
	baseURL string
}

func newFSBlobStore(root, baseURL string) (*fsBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &fsBlobStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// path maps a key to a file under root. Keys that would escape root are
// rejected.
func (s *fsBlobStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", errInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errInvalidKey
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes to a temp file and renames it into place.
func (s *fsBlobStore) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return s.URL(key), nil
}

func (s *fsBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete is a no-op for keys that do not exist.
func (s *fsBlobStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %q: %w", key, err)
	}
	return nil
}

func (s *fsBlobStore) URL(key string) string {
	return s.baseURL + "/media/" + key
}

// mediaHandler serves GET /media/{key...}. Directories are never listed.
func mediaHandler(s *fsBlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/media/")
		p, err := s.path(key)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || strings.HasSuffix(p, ".tmp") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeFile(w, r, p)
	}
}
