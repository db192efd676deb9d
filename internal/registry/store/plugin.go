package store

import (
	"context"
	"fmt"

	"github.com/chirino/chatmap-ingest/internal/model"
	"github.com/google/uuid"
)

// PointStore persists correlated points into per-owner maps.
type PointStore interface {
	// GetOrCreateMap returns the owner's map, creating it on first use.
	GetOrCreateMap(ctx context.Context, ownerID string) (*model.Map, error)
	// UpsertPoints writes points keyed by their location record id. Existing
	// rows keep their message and file when the incoming value is null.
	UpsertPoints(ctx context.Context, ownerID string, points []model.Point) error
	GetMapByOwner(ctx context.Context, ownerID string) (*model.Map, error)
	ExportMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error)
	SetSharing(ctx context.Context, ownerID string, sharing model.Sharing) (*model.Map, error)
	// PublicMap returns the map only when it is shared publicly.
	PublicMap(ctx context.Context, mapID uuid.UUID) (*model.Map, []model.Point, error)
	Close() error
}

// Loader creates a PointStore from config.
type Loader func(ctx context.Context) (PointStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
