package snapshot

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Store keeps one FeatureCollection per owner.
type Store interface {
	// Load returns the owner's stored collection, or an empty collection
	// when none exists yet.
	Load(ctx context.Context, ownerID string) (*geojson.FeatureCollection, error)
	Save(ctx context.Context, ownerID string, fc *geojson.FeatureCollection) error
	Close() error
}

// Loader creates a snapshot Store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a snapshot store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a snapshot store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered snapshot store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named snapshot store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown snapshot store %q; valid: %v", name, Names())
}
