// Package handlers implements the crashpull HTTP API request handlers.
package handlers

import (
	"context"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Acquirer loads datasets and refreshes the cache
type Acquirer interface {
	LoadAndPreview(ctx context.Context, source string, preview int, dr *dataset.DateRange) (*dataset.Dataset, *acquire.Summary, error)
	Refresh(ctx context.Context, trigger string, force bool) (*acquire.Summary, error)
}

// CacheInspector reports on the on-disk cache
type CacheInspector interface {
	Status(ctx context.Context) (*admin.CacheStatus, error)
}

// Options tune request handling
type Options struct {
	AllowLocalSources bool
}

// Server serves the API routes
type Server struct {
	acquirer  Acquirer
	inspector CacheInspector
	summaries *admin.CacheManager
	opts      Options
	clock     clockwork.Clock
	log       logrus.FieldLogger
}

// NewServer creates a new API server instance. summaries may be nil to disable summary caching.
func NewServer(acquirer Acquirer, inspector CacheInspector, summaries *admin.CacheManager, opts Options, log logrus.FieldLogger) *Server {
	return &Server{
		acquirer:  acquirer,
		inspector: inspector,
		summaries: summaries,
		opts:      opts,
		clock:     clockwork.NewRealClock(),
		log:       log.WithField("component", "api.handlers"),
	}
}

// Register mounts the routes on router
func (s *Server) Register(router fiber.Router) {
	router.Get("/dataset/summary", s.GetDatasetSummary)
	router.Get("/cache/status", s.GetCacheStatus)
	router.Post("/cache/refresh", s.RefreshCache)
}

// Healthz handles GET /healthz
func (s *Server) Healthz(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
