// Package redis registers the "redis" snapshot store, which keeps each
// owner's FeatureCollection as a JSON string.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrysnapshot "github.com/chirino/chatmap-ingest/internal/registry/snapshot"
	"github.com/paulmach/orb/geojson"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registrysnapshot.Register(registrysnapshot.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrysnapshot.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis snapshot: CHATMAP_REDIS_URL is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis snapshot: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis snapshot: ping failed: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

type Store struct {
	client goredis.UniversalClient
}

var _ registrysnapshot.Store = (*Store)(nil)

// Key returns the redis key holding ownerID's snapshot.
func Key(ownerID string) string {
	return "chatmap:snapshot:" + ownerID
}

func (s *Store) Load(ctx context.Context, ownerID string) (*geojson.FeatureCollection, error) {
	data, err := s.client.Get(ctx, Key(ownerID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return geojson.NewFeatureCollection(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis snapshot: get %s: %w", ownerID, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("redis snapshot: decode %s: %w", ownerID, err)
	}
	return fc, nil
}

func (s *Store) Save(ctx context.Context, ownerID string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("redis snapshot: encode %s: %w", ownerID, err)
	}
	if err := s.client.Set(ctx, Key(ownerID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis snapshot: set %s: %w", ownerID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
