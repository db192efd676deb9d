// Package redis registers the "redis" log source. Each owner has one stream
// named <prefix><owner> (messages:<owner> by default) written by the chat connectors.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/config"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	goredis "github.com/redis/go-redis/v9"
)

const scanCount = 100

func init() {
	registrysource.Register(registrysource.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrysource.Source, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis source: CHATMAP_REDIS_URL is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis source: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis source: ping failed: %w", err)
	}
	return New(client, cfg.SourceKeyPattern), nil
}

// New returns a stream Source over client. pattern is a SCAN match pattern whose
// trailing "*" stands for the owner id.
func New(client goredis.UniversalClient, pattern string) *StreamSource {
	if pattern == "" {
		pattern = "messages:*"
	}
	return &StreamSource{
		client:  client,
		pattern: pattern,
		prefix:  strings.TrimSuffix(pattern, "*"),
	}
}

// StreamSource reads owner logs from redis streams.
type StreamSource struct {
	client  goredis.UniversalClient
	pattern string
	prefix  string
}

func (s *StreamSource) key(owner string) string {
	return s.prefix + owner
}

func (s *StreamSource) List(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var owners []string
	iter := s.client.ScanType(ctx, 0, s.pattern, scanCount, "stream").Iterator()
	for iter.Next(ctx) {
		owner := strings.TrimPrefix(iter.Val(), s.prefix)
		// SCAN may return a key more than once.
		if owner == "" || seen[owner] {
			continue
		}
		seen[owner] = true
		owners = append(owners, owner)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis source: scan %q: %w", s.pattern, err)
	}
	return owners, nil
}

func (s *StreamSource) Read(ctx context.Context, owner string) ([]registrysource.Entry, error) {
	msgs, err := s.client.XRange(ctx, s.key(owner), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis source: xrange %s: %w", s.key(owner), err)
	}
	entries := make([]registrysource.Entry, len(msgs))
	for i, m := range msgs {
		entries[i] = registrysource.Entry{ID: m.ID, Values: m.Values}
	}
	return entries, nil
}

// Trim removes every entry whose stream id is at or before olderThan.
func (s *StreamSource) Trim(ctx context.Context, owner string, olderThan time.Time) (int64, error) {
	// XTRIM MINID drops ids strictly lower than the given id, so "<ms>-1" drops
	// everything up to and including "<ms>-0".
	minID := fmt.Sprintf("%d-1", olderThan.UnixMilli())
	n, err := s.client.XTrimMinID(ctx, s.key(owner), minID).Result()
	if err != nil {
		return 0, fmt.Errorf("redis source: xtrim %s: %w", s.key(owner), err)
	}
	if n > 0 {
		log.Debug("Trimmed stream", "owner", owner, "deleted", n)
	}
	return n, nil
}

var _ registrysource.Source = (*StreamSource)(nil)
