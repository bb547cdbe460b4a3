package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/ethpandaops/crashpull/pkg/api/handlers"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app       *fiber.App
	server    *http.Server
	config    *Config
	acquirer  handlers.Acquirer
	inspector handlers.CacheInspector
	summaries *admin.CacheManager
	log       logrus.FieldLogger
}

// NewService creates a new API service. summaries may be nil when Redis is disabled.
func NewService(cfg *Config, acquirer handlers.Acquirer, inspector handlers.CacheInspector, summaries *admin.CacheManager, log logrus.FieldLogger) Service {
	return &service{
		config:    cfg,
		acquirer:  acquirer,
		inspector: inspector,
		summaries: summaries,
		log:       log.WithField("service", "api"),
	}
}

// newApp builds the Fiber app with every route mounted
func newApp(server *handlers.Server, log logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "crashpull API",
	})

	setupMiddleware(app, log)

	app.Get("/healthz", server.Healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	server.Register(app.Group("/api/v1"))

	return app
}

// Start initializes and starts the API server
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")
		return nil
	}

	server := handlers.NewServer(s.acquirer, s.inspector, s.summaries, handlers.Options{
		AllowLocalSources: s.config.AllowLocalSources,
	}, s.log)

	s.app = newApp(server, s.log)

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           adaptor.FiberApp(s.app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
