package cache

import (
	"context"
	"fmt"
	"time"
)

// MediaCache memoises resolved media URLs by media key.
type MediaCache interface {
	Available() bool
	// Get returns the cached URL and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores url under key. A zero ttl uses the cache default.
	Set(ctx context.Context, key, url string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (MediaCache, error)

// Plugin names a cache backend selectable with --cache-kind.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
