// Package media resolves chat media references to stable public URLs.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	registrycache "github.com/chirino/chatmap-ingest/internal/registry/cache"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
)

// Key returns the storage key for a reference: the hex sha256 of
// "<owner>-<reference>" followed by the reference's extension.
func Key(reference, owner string) string {
	sum := sha256.Sum256([]byte(owner + "-" + reference))
	key := hex.EncodeToString(sum[:])
	if ext := extension(reference); ext != "" {
		key += "." + ext
	}
	return key
}

// extension returns the text after the last "." when it is a plain
// alphanumeric suffix.
func extension(reference string) string {
	i := strings.LastIndexByte(reference, '.')
	if i < 0 || i == len(reference)-1 {
		return ""
	}
	ext := reference[i+1:]
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return ext
}

// Resolver maps media references to public URLs, fetching and storing the
// bytes the first time a reference is seen.
type Resolver struct {
	store   registrymedia.MediaStore
	cache   registrycache.MediaCache
	fetcher Fetcher
	urlFor  func(key string) string
}

// NewResolver wires a resolver. cache may be nil.
func NewResolver(store registrymedia.MediaStore, cache registrycache.MediaCache, fetcher Fetcher, urlFor func(key string) string) *Resolver {
	return &Resolver{store: store, cache: cache, fetcher: fetcher, urlFor: urlFor}
}

// Resolve returns the public URL for reference, or nil when there is nothing
// to link to. Fetch failures are logged and yield nil without an error; an
// error is returned only when the media store itself fails.
func (r *Resolver) Resolve(ctx context.Context, reference, owner string) (*string, error) {
	if reference == "" {
		return nil, nil
	}
	key := Key(reference, owner)

	if url, ok := r.cached(ctx, key); ok {
		telemetry.RecordMediaCacheHit()
		return &url, nil
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("media store exists %s: %w", key, err)
	}
	if exists {
		telemetry.RecordMediaCacheHit()
		return r.remember(ctx, key), nil
	}

	content, err := r.fetcher.Fetch(ctx, reference, owner)
	if err != nil {
		var fe *MediaFetchError
		if errors.As(err, &fe) {
			telemetry.RecordMediaFetch("error")
			log.Warn("Media fetch failed", "reference", reference, "owner", owner, "err", err)
			return nil, nil
		}
		return nil, err
	}
	if content == nil || content.Size == 0 || content.Body == nil {
		telemetry.RecordMediaFetch("empty")
		log.Warn("Media file is empty", "reference", reference, "owner", owner)
		return nil, nil
	}
	defer content.Body.Close()

	if err := r.store.Put(ctx, key, content.Body, content.Size, content.ContentType); err != nil {
		return nil, fmt.Errorf("media store put %s: %w", key, err)
	}
	telemetry.RecordMediaFetch("ok")
	log.Debug("Media stored", "key", key, "size", content.Size)
	return r.remember(ctx, key), nil
}

func (r *Resolver) cached(ctx context.Context, key string) (string, bool) {
	if r.cache == nil || !r.cache.Available() {
		return "", false
	}
	url, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Debug("Media cache get failed", "key", key, "err", err)
		return "", false
	}
	return url, ok
}

func (r *Resolver) remember(ctx context.Context, key string) *string {
	url := r.urlFor(key)
	if r.cache != nil && r.cache.Available() {
		if err := r.cache.Set(ctx, key, url, 0); err != nil {
			log.Debug("Media cache set failed", "key", key, "err", err)
		}
	}
	return &url
}
