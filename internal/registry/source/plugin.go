package source

import (
	"context"
	"fmt"
	"time"
)

// Entry is one raw log entry: an opaque, monotonically ordered id plus its field map.
type Entry struct {
	ID     string
	Values map[string]interface{}
}

// Source is the SPI for append-mostly chat logs, one log per owner.
type Source interface {
	// List returns the owners that currently have a log.
	List(ctx context.Context) ([]string, error)
	// Read returns every entry of the owner's log, oldest first.
	Read(ctx context.Context, owner string) ([]Entry, error)
	// Trim deletes entries older than the cutoff and returns how many were removed.
	Trim(ctx context.Context, owner string, olderThan time.Time) (int64, error)
}

// Loader creates a Source from config.
type Loader func(ctx context.Context) (Source, error)

// Plugin represents a log source plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a source plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered source plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named source plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown source %q; valid: %v", name, Names())
}
