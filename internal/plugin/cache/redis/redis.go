package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	registrycache "github.com/chirino/chatmap-ingest/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrycache.MediaCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHATMAP_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURLWithTTL creates a cache from a Redis URL with an explicit default TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.MediaCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return New(client, ttl), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, ttl time.Duration) registrycache.MediaCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisMediaCache{client: client, ttl: ttl}
}

type redisMediaCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func mediaKey(key string) string {
	return "chatmap:media-url:" + key
}

func (c *redisMediaCache) Available() bool {
	return true
}

func (c *redisMediaCache) Get(ctx context.Context, key string) (string, bool, error) {
	url, err := c.client.Get(ctx, mediaKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

func (c *redisMediaCache) Set(ctx context.Context, key, url string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, mediaKey(key), url, ttl).Err()
}

func (c *redisMediaCache) Remove(ctx context.Context, key string) error {
	return c.client.Del(ctx, mediaKey(key)).Err()
}

var _ registrycache.MediaCache = (*redisMediaCache)(nil)
