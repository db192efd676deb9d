package telemetry

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	cyclesTotal         prometheus.Counter
	cycleDuration       prometheus.Histogram
	sourceFailures      *prometheus.CounterVec
	featuresTotal       prometheus.Counter
	pointsTotal         prometheus.Counter
	decodeDropsTotal    prometheus.Counter
	decryptFailures     prometheus.Counter
	mediaFetchesTotal   *prometheus.CounterVec
	mediaCacheHitsTotal prometheus.Counter
	streamTrimmedTotal  prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Until it is called the Record* helpers are no-ops. Only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmap_management_requests_total",
			Help: "Total number of management HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmap_management_request_duration_seconds",
			Help:    "Management HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmap_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	cyclesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_poll_cycles_total",
		Help: "Total polling cycles run",
	})

	cycleDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatmap_poll_cycle_duration_seconds",
		Help:    "Duration of a polling cycle over all sources",
		Buckets: prometheus.DefBuckets,
	})

	sourceFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmap_source_failures_total",
			Help: "Per-source ingestion failures by stage",
		},
		[]string{"stage"},
	)

	featuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_features_total",
		Help: "Geolocated features emitted by the correlator",
	})

	pointsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_points_persisted_total",
		Help: "Points written by upsert",
	})

	decodeDropsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_decode_dropped_total",
		Help: "Log entries dropped by the decoder",
	})

	decryptFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_decrypt_failures_total",
		Help: "Message bodies that failed to decrypt",
	})

	mediaFetchesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmap_media_fetches_total",
			Help: "Upstream media fetches by outcome",
		},
		[]string{"outcome"},
	)

	mediaCacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_media_cache_hits_total",
		Help: "Media references resolved without fetching",
	})

	streamTrimmedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chatmap_stream_trimmed_entries_total",
		Help: "Log entries deleted by retention trimming",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "chatmap_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "chatmap_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// RecordCycle counts one finished polling cycle.
func RecordCycle(d time.Duration) {
	if cyclesTotal == nil {
		return
	}
	cyclesTotal.Inc()
	cycleDuration.Observe(d.Seconds())
}

// RecordSourceFailure counts a failed source at the given pipeline stage.
func RecordSourceFailure(stage string) {
	if sourceFailures != nil {
		sourceFailures.WithLabelValues(stage).Inc()
	}
}

func RecordFeatures(n int) {
	if featuresTotal != nil {
		featuresTotal.Add(float64(n))
	}
}

func RecordPoints(n int) {
	if pointsTotal != nil {
		pointsTotal.Add(float64(n))
	}
}

func RecordDecodeDrops(n int) {
	if decodeDropsTotal != nil {
		decodeDropsTotal.Add(float64(n))
	}
}

func RecordDecryptFailure() {
	if decryptFailures != nil {
		decryptFailures.Inc()
	}
}

// RecordMediaFetch counts a fetch outcome: "ok", "empty", "error" or "rejected".
func RecordMediaFetch(outcome string) {
	if mediaFetchesTotal != nil {
		mediaFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

func RecordMediaCacheHit() {
	if mediaCacheHitsTotal != nil {
		mediaCacheHitsTotal.Inc()
	}
}

func RecordTrimmed(n int64) {
	if streamTrimmedTotal != nil {
		streamTrimmedTotal.Add(float64(n))
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
