package media

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("media not found")

// MediaStore persists media bytes under a deterministic key.
type MediaStore interface {
	// Exists reports whether key has already been stored.
	Exists(ctx context.Context, key string) (bool, error)
	// Put writes size bytes from data under key, replacing any previous content.
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	// Get returns a reader for the stored bytes or ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error
}

// Loader creates a MediaStore from config.
type Loader func(ctx context.Context) (MediaStore, error)

// Plugin represents a media store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a media store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered media store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named media store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown media store %q; valid: %v", name, Names())
}
