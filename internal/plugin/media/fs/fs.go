// Package fs registers the "fs" media store, which keeps media as files in
// one local directory (the directory served by the public media endpoint).
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "fs",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrymedia.MediaStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.MediaDir == "" {
		return nil, fmt.Errorf("fs media store: CHATMAP_MEDIA_FOLDER is required")
	}
	return New(cfg.MediaDir)
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fs media store: create %q: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

// DirStore stores each key as a file in a single directory.
type DirStore struct {
	dir string
}

func (s *DirStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("fs media store: invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

func (s *DirStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Put writes to a temp file in the same directory and renames it into place
// so readers never observe partial content.
func (s *DirStore) Put(_ context.Context, key string, data io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("fs media store: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fs media store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fs media store: close %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("fs media store: chmod %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("fs media store: rename %s: %w", key, err)
	}
	return nil
}

func (s *DirStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, registrymedia.ErrNotFound
	}
	return f, err
}

func (s *DirStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var _ registrymedia.MediaStore = (*DirStore)(nil)
