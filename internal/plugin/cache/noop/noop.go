package noop

import (
	"context"
	"time"

	"github.com/chirino/chatmap-ingest/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.MediaCache, error) {
			return &noopMediaCache{}, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type noopMediaCache struct{}

func (n *noopMediaCache) Available() bool { return false }
func (n *noopMediaCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}
func (n *noopMediaCache) Set(_ context.Context, _, _ string, _ time.Duration) error { return nil }
func (n *noopMediaCache) Remove(_ context.Context, _ string) error                 { return nil }

var _ cache.MediaCache = (*noopMediaCache)(nil)
