package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"sync"
	"time"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/ethpandaops/crashpull/pkg/api"
	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/ethpandaops/crashpull/pkg/fetcher"
	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/ethpandaops/crashpull/pkg/probe"
	crashredis "github.com/ethpandaops/crashpull/pkg/redis"
	"github.com/ethpandaops/crashpull/pkg/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service wires the acquisition pipeline, the cache administration and the serve-mode surfaces
type Service struct {
	config *Config
	log    logrus.FieldLogger
	clock  clockwork.Clock

	// mu serializes acquisitions so a background refresh and API requests never overlap
	mu           sync.Mutex
	orchestrator *acquire.Orchestrator
	store        *cache.Store
	admin        *admin.Service

	redisClient *redis.Client
	scheduler   scheduler.Service
	api         api.Service

	// Servers
	healthServer *http.Server
	pprofServer  *http.Server
}

// NewService creates the engine. Redis and the scheduler are only set up when configured.
func NewService(ctx context.Context, log logrus.FieldLogger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	prober, err := probe.New(log, &cfg.Probe)
	if err != nil {
		return nil, fmt.Errorf("failed to create prober: %w", err)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(log, &cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP fetcher: %w", err)
	}

	s3Fetcher, err := fetcher.NewS3Fetcher(ctx, log, &cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 fetcher: %w", err)
	}

	router := fetcher.NewRouter().
		Handle(httpFetcher, "http", "https").
		Handle(s3Fetcher, "s3")

	parser, err := dataset.NewParser(cfg.Cache.Parser, log)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(log, &cfg.Cache, parser)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	clock := clockwork.NewRealClock()

	orchestrator, err := acquire.NewOrchestrator(log, &cfg.Acquire, acquire.Components{
		Prober:  prober,
		Fetcher: router,
		Store:   store,
		Parser:  parser,
		Clock:   clock,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:       cfg,
		log:          log.WithField("service", "engine"),
		clock:        clock,
		orchestrator: orchestrator,
		store:        store,
	}

	var summaries *admin.CacheManager

	if cfg.Redis.Enabled() {
		s.redisClient, err = crashredis.NewClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}

		summaries = admin.NewCacheManager(s.redisClient, cfg.Redis.Prefix, cfg.Redis.SummaryTTL)
	}

	s.admin = admin.NewService(store, summaries, clock)

	if cfg.Scheduler.Enabled {
		s.scheduler, err = scheduler.NewService(log, &cfg.Scheduler, s.scheduledRefresh)
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler service: %w", err)
		}
	}

	s.api = api.NewService(&cfg.API, s, s.admin, summaries, log)

	return s, nil
}

// Admin returns the cache administration service
func (s *Service) Admin() *admin.Service {
	return s.admin
}

// LoadAndPreview acquires the dataset named by source and attaches up to preview records.
// Summaries cached in Redis are dropped when the acquisition replaced the on-disk cache.
func (s *Service) LoadAndPreview(ctx context.Context, source string, preview int, dr *dataset.DateRange) (*dataset.Dataset, *acquire.Summary, error) {
	s.mu.Lock()
	ds, summary, err := s.orchestrator.LoadAndPreview(ctx, source, preview, dr)
	s.mu.Unlock()

	if err == nil {
		s.invalidateIfFetched(ctx, summary)
	}

	return ds, summary, err
}

// Refresh brings the cache up to date. Without force a fresh cache is left alone. Summaries
// cached in Redis are dropped whenever new data was fetched.
func (s *Service) Refresh(ctx context.Context, trigger string, force bool) (*acquire.Summary, error) {
	spec := acquire.Specifier{Kind: acquire.KindDefaultRemote}
	if force {
		spec.Kind = acquire.KindForcedUpdate
	}

	s.mu.Lock()
	_, summary, err := s.orchestrator.Acquire(ctx, spec, nil)
	s.mu.Unlock()

	summaries := s.admin.CacheManager()
	if summaries == nil {
		return summary, err
	}

	rec := admin.RefreshRecord{
		Trigger: trigger,
		Success: err == nil,
		At:      s.clock.Now().UTC(),
	}

	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.RequestID = summary.RequestID
		rec.Source = string(summary.Source)
		rec.Rows = summary.TotalRows
		rec.Duration = summary.Duration

		s.invalidateIfFetched(ctx, summary)
	}

	if setErr := summaries.SetLastRefresh(ctx, rec); setErr != nil {
		s.log.WithError(setErr).Warn("Failed to record refresh")
	}

	return summary, err
}

// invalidateIfFetched drops cached summaries after new data was fetched into the cache.
// Explicit remote URLs are never written to the cache and leave summaries alone.
func (s *Service) invalidateIfFetched(ctx context.Context, summary *acquire.Summary) {
	summaries := s.admin.CacheManager()
	if summaries == nil || summary == nil || summary.Source != cache.SourceAPI {
		return
	}

	if summary.Specifier.Kind == acquire.KindRemoteURL {
		return
	}

	removed, err := summaries.InvalidateSummaries(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to invalidate cached summaries")

		return
	}

	if removed > 0 {
		s.log.WithField("removed", removed).Debug("Invalidated cached summaries")
	}
}

func (s *Service) scheduledRefresh(ctx context.Context) error {
	_, err := s.Refresh(ctx, admin.TriggerScheduled, s.config.Scheduler.Mode == scheduler.ModeForce)

	return err
}

// Run starts the serve-mode components and blocks until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.log.WithFields(logrus.Fields{
		"has_redis":     s.redisClient != nil,
		"has_scheduler": s.scheduler != nil,
		"api_enabled":   s.config.API.Enabled,
	}).Debug("Engine component states")

	observability.StartMetricsServer(ctx, s.log, s.config.MetricsAddr)

	if s.config.HealthCheckAddr != "" {
		s.healthServer = s.newHealthServer()
		g.Go(func() error {
			return listen(s.log, "health check", s.healthServer)
		})
	}

	if s.config.PProfAddr != "" {
		s.pprofServer = &http.Server{
			Addr:              s.config.PProfAddr,
			ReadHeaderTimeout: 120 * time.Second,
		}
		g.Go(func() error {
			return listen(s.log, "pprof", s.pprofServer)
		})
	}

	if err := s.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API service: %w", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	s.log.Info("crashpull engine started")

	g.Go(func() error {
		<-ctx.Done()

		return s.Stop()
	})

	return g.Wait()
}

// Stop shuts down every started component
func (s *Service) Stop() error {
	s.log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if err := stopFunc(); err != nil {
			s.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// Stop the scheduler first so no refresh starts during shutdown
	if s.scheduler != nil {
		stopService("scheduler service", s.scheduler.Stop)
	}

	stopService("API service", s.api.Stop)

	stopService("Redis client", s.Close)

	if s.healthServer != nil {
		stopService("health check server", func() error { return s.healthServer.Shutdown(ctx) })
	}

	if s.pprofServer != nil {
		stopService("pprof server", func() error { return s.pprofServer.Shutdown(ctx) })
	}

	s.log.Info("crashpull engine stopped")

	return nil
}

// Close releases the Redis connection. Commands that never call Run use it instead of Stop.
func (s *Service) Close() error {
	if s.redisClient == nil {
		return nil
	}

	return s.redisClient.Close()
}

func (s *Service) newHealthServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Ready once a readable cache exists
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.store.ReadMetadata(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:              s.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 120 * time.Second,
	}
}

func listen(log logrus.FieldLogger, name string, server *http.Server) error {
	log.WithField("addr", server.Addr).Infof("Starting %s server", name)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}

	return nil
}
