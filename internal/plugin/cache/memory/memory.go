// Package memory registers the in-process "memory" media URL cache.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrycache "github.com/chirino/chatmap-ingest/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultTTL   = time.Hour
	numCounters  = 100_000
	maxCostBytes = 16 << 20
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "memory",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrycache.MediaCache, error) {
	ttl := defaultTTL
	if cfg := config.FromContext(ctx); cfg != nil && cfg.CacheTTL > 0 {
		ttl = cfg.CacheTTL
	}
	return New(ttl)
}

// New creates a ristretto-backed cache. Entries are costed by their byte size.
func New(ttl time.Duration) (*MediaCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: numCounters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MediaCache{cache: c, ttl: ttl}, nil
}

// MediaCache is an in-process MediaCache.
type MediaCache struct {
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

func (c *MediaCache) Available() bool { return true }

func (c *MediaCache) Get(_ context.Context, key string) (string, bool, error) {
	url, ok := c.cache.Get(key)
	return url, ok, nil
}

func (c *MediaCache) Set(_ context.Context, key, url string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(key, url, int64(len(key)+len(url)), ttl)
	// Make the write visible to the next Get.
	c.cache.Wait()
	return nil
}

func (c *MediaCache) Remove(_ context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (c *MediaCache) Close() {
	c.cache.Close()
}

var _ registrycache.MediaCache = (*MediaCache)(nil)
