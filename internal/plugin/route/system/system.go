package system

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/chirino/chatmap-ingest/internal/registry/route"
)

var (
	ready atomic.Bool

	probeMu    sync.RWMutex
	lastCycle  func() time.Time
	staleAfter time.Duration
)

// MarkReady signals that the service has finished initializing.
func MarkReady() {
	ready.Store(true)
}

// WatchCycles makes /ready report the poller's health: not ready until the
// first cycle completes, and stalled when no cycle finished within
// staleAfter.
func WatchCycles(last func() time.Time, stale time.Duration) {
	probeMu.Lock()
	defer probeMu.Unlock()
	lastCycle = last
	staleAfter = stale
}

// Reset clears readiness state. Used by tests.
func Reset() {
	ready.Store(false)
	WatchCycles(nil, 0)
}

func readiness() (int, gin.H) {
	if !ready.Load() {
		return http.StatusServiceUnavailable, gin.H{"status": "starting"}
	}
	probeMu.RLock()
	last, stale := lastCycle, staleAfter
	probeMu.RUnlock()
	if last == nil {
		return http.StatusOK, gin.H{"status": "ready"}
	}
	at := last()
	if at.IsZero() {
		return http.StatusServiceUnavailable, gin.H{"status": "starting"}
	}
	body := gin.H{"lastCycle": at.UTC().Format(time.RFC3339)}
	if stale > 0 && time.Since(at) > stale {
		body["status"] = "stalled"
		return http.StatusServiceUnavailable, body
	}
	body["status"] = "ready"
	return http.StatusOK, body
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Loader: func(r *gin.Engine) error {
			// Liveness: process is up
			r.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})

			r.GET("/ready", func(c *gin.Context) {
				c.JSON(readiness())
			})

			r.GET("/metrics", gin.WrapH(promhttp.Handler()))

			return nil
		},
	})
}
