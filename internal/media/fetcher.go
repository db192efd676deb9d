package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/tempfiles"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// MediaFetchError describes a failed upstream media download.
type MediaFetchError struct {
	Reference string
	Owner     string
	// Status is the upstream HTTP status, or 0 when no response was received.
	Status int
	Err    error
}

func (e *MediaFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch media %s for %s: upstream status %d", e.Reference, e.Owner, e.Status)
	}
	return fmt.Sprintf("fetch media %s for %s: %v", e.Reference, e.Owner, e.Err)
}

func (e *MediaFetchError) Unwrap() error { return e.Err }

// Content is fetched media spooled to a temp file. Body must be closed.
type Content struct {
	Body        io.ReadSeekCloser
	Size        int64
	ContentType string
}

// Fetcher downloads media bytes for a reference owned by owner.
type Fetcher interface {
	Fetch(ctx context.Context, reference, owner string) (*Content, error)
}

// HTTPFetcher downloads from the connector's media endpoint
// GET {base}/media/{reference}?user={owner}.
type HTTPFetcher struct {
	client  *http.Client
	base    string
	maxSize int64
	tempDir string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Content]
}

// NewHTTPFetcher builds a fetcher from the media settings in cfg.
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	limit := rate.Inf
	if cfg.MediaFetchRate > 0 {
		limit = rate.Limit(cfg.MediaFetchRate)
	}
	burst := cfg.MediaFetchBurst
	if burst <= 0 {
		burst = 1
	}
	trips := cfg.MediaBreakerTrips
	if trips == 0 {
		trips = 5
	}
	period := cfg.MediaBreakerPeriod
	if period <= 0 {
		period = 30 * time.Second
	}

	return &HTTPFetcher{
		client:  &http.Client{Timeout: cfg.MediaFetchTimeout},
		base:    strings.TrimRight(cfg.MediaUpstreamURL, "/"),
		maxSize: cfg.MediaMaxSize,
		tempDir: cfg.ResolvedTempDir(),
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker[*Content](gobreaker.Settings{
			Name:        "media-upstream",
			MaxRequests: 1,
			Timeout:     period,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= trips
			},
			// A missing file is the upstream answering correctly.
			IsSuccessful: func(err error) bool {
				var fe *MediaFetchError
				return err == nil || (errors.As(err, &fe) && fe.Status == http.StatusNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("Media circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Fetch downloads the media into a temp file. An empty body returns a Content
// with Size 0 and a nil Body.
func (f *HTTPFetcher) Fetch(ctx context.Context, reference, owner string) (*Content, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &MediaFetchError{Reference: reference, Owner: owner, Err: err}
	}
	content, err := f.breaker.Execute(func() (*Content, error) {
		return f.fetch(ctx, reference, owner)
	})
	if err != nil {
		var fe *MediaFetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		// Breaker rejections (open or half-open saturated).
		return nil, &MediaFetchError{Reference: reference, Owner: owner, Err: err}
	}
	return content, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, reference, owner string) (*Content, error) {
	u := f.base + "/media/" + url.PathEscape(reference) + "?" + url.Values{"user": {owner}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &MediaFetchError{Reference: reference, Owner: owner, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &MediaFetchError{Reference: reference, Owner: owner, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &MediaFetchError{Reference: reference, Owner: owner, Status: resp.StatusCode}
	}

	body, n, err := tempfiles.Spool(f.tempDir, "chatmap-media-*", resp.Body, f.maxSize)
	if err != nil {
		return nil, &MediaFetchError{Reference: reference, Owner: owner, Err: err}
	}
	if n == 0 {
		_ = body.Close()
		return &Content{}, nil
	}
	return &Content{Body: body, Size: n, ContentType: resp.Header.Get("Content-Type")}, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
