package serve

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/cmd/cliflags"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/decrypt"
	"github.com/chirino/chatmap-ingest/internal/ingest"
	"github.com/chirino/chatmap-ingest/internal/media"
	routesystem "github.com/chirino/chatmap-ingest/internal/plugin/route/system"
	registrycache "github.com/chirino/chatmap-ingest/internal/registry/cache"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	registrymigrate "github.com/chirino/chatmap-ingest/internal/registry/migrate"
	registryroute "github.com/chirino/chatmap-ingest/internal/registry/route"
	registrysnapshot "github.com/chirino/chatmap-ingest/internal/registry/snapshot"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/chirino/chatmap-ingest/internal/service"
	"github.com/chirino/chatmap-ingest/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// Server holds the running poller and its subsystems.
type Server struct {
	Config     *config.Config
	Poller     *service.Poller
	Router     *gin.Engine
	management *managementServer
	closers    []func() error
	stopPoller context.CancelFunc
	pollerDone chan struct{}
}

// ManagementAddr returns the management listener address, or nil when the
// management server is disabled.
func (s *Server) ManagementAddr() net.Addr {
	if s.management == nil {
		return nil
	}
	return s.management.Addr()
}

// Shutdown stops the poller, waits for the running cycle to end, then closes
// the management server and backing stores.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopPoller()
	select {
	case <-s.pollerDone:
	case <-ctx.Done():
		log.Warn("Poller did not stop before the drain timeout")
	}
	var err error
	if s.management != nil {
		err = s.management.Shutdown(ctx)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i](); cerr != nil {
			log.Warn("Close failed", "err", cerr)
		}
	}
	return err
}

// StartServer initializes all subsystems and starts the poller and the
// management server.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chatmap ingest",
		"source", cfg.SourceType,
		"mode", cfg.IngestMode,
		"db", cfg.DatastoreType,
		"media", cfg.MediaType,
		"cache", cfg.CacheType,
		"encryption", cfg.EncryptionProvider,
	)
	ctx = config.WithContext(ctx, cfg)

	metricsLabels, err := telemetry.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	telemetry.InitMetrics(metricsLabels)

	srv := &Server{Config: cfg}
	fail := func(err error) (*Server, error) {
		for i := len(srv.closers) - 1; i >= 0; i-- {
			_ = srv.closers[i]()
		}
		return nil, err
	}

	if cfg.IngestMode == config.IngestModeUpsert {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	sourceLoader, err := registrysource.Select(cfg.SourceType)
	if err != nil {
		return nil, err
	}
	source, err := sourceLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize source: %w", err)
	}

	decryptor, err := decrypt.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	log.Info("Encryption provider loaded", "provider", decryptor.ProviderID())

	resolver, closeCache, err := newResolver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closeCache)

	var sink ingest.Sink
	switch cfg.IngestMode {
	case config.IngestModeUpsert:
		store, err := cliflags.OpenStore(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		srv.closers = append(srv.closers, store.Close)
		sink = ingest.UpsertSink{Store: store}
	case config.IngestModeSnapshot:
		loader, err := registrysnapshot.Select(cfg.SnapshotType)
		if err != nil {
			return fail(err)
		}
		snapshots, err := loader(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize snapshot store: %w", err))
		}
		srv.closers = append(srv.closers, snapshots.Close)
		sink = ingest.SnapshotSink{Store: snapshots}
	default:
		return fail(fmt.Errorf("unknown ingest mode %q; valid: [%s %s]", cfg.IngestMode, config.IngestModeUpsert, config.IngestModeSnapshot))
	}

	pipeline := ingest.NewPipeline(source, decryptor, resolver, sink)
	var trimmer *service.StreamTrimmer
	if cfg.StreamCleanup {
		trimmer = service.NewStreamTrimmer(source, cfg.StreamRetention)
	}
	srv.Poller = service.NewPoller(source, pipeline, trimmer, cfg.PollInterval)

	if cfg.ManagementEnabled {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			router.Use(telemetry.AccessLogMiddleware())
		} else {
			router.Use(telemetry.AccessLogMiddleware("/health", "/ready", "/metrics"))
		}
		router.Use(telemetry.MetricsMiddleware())
		for _, loader := range registryroute.Loaders() {
			if err := loader(router); err != nil {
				return fail(fmt.Errorf("failed to load routes: %w", err))
			}
		}
		srv.Router = router
		srv.management, err = startManagementServer(cfg.ManagementListener, router)
		if err != nil {
			return fail(err)
		}
	}

	pollCtx, cancel := context.WithCancel(ctx)
	srv.stopPoller = cancel
	srv.pollerDone = make(chan struct{})
	go func() {
		defer close(srv.pollerDone)
		srv.Poller.Start(pollCtx)
	}()

	// A cycle that has not finished within three intervals counts as stalled.
	routesystem.WatchCycles(srv.Poller.LastCycle, 3*cfg.PollInterval+time.Minute)
	routesystem.MarkReady()
	return srv, nil
}

// newResolver wires the media store, memo cache and fetcher. The returned
// closer releases the cache.
func newResolver(ctx context.Context, cfg *config.Config) (*media.Resolver, func() error, error) {
	mediaLoader, err := registrymedia.Select(cfg.MediaType)
	if err != nil {
		return nil, nil, err
	}
	store, err := mediaLoader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	var cache registrycache.MediaCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if cache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		cache = nil
	}
	closeCache := func() error {
		if c, ok := cache.(interface{ Close() }); ok {
			c.Close()
		}
		return nil
	}

	return media.NewResolver(store, cache, media.NewHTTPFetcher(cfg), cfg.MediaURL), closeCache, nil
}
