package handlers

import (
	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/gofiber/fiber/v3"
)

// GetCacheStatus handles GET /api/v1/cache/status
func (s *Server) GetCacheStatus(c fiber.Ctx) error {
	status, err := s.inspector.Status(c.Context())
	if err != nil {
		return toFiberError(err)
	}

	return c.Status(fiber.StatusOK).JSON(status)
}

// RefreshCache handles POST /api/v1/cache/refresh. With force=true the remote is fetched even
// when the cache is fresh.
func (s *Server) RefreshCache(c fiber.Ctx) error {
	force := c.Query("force") == "true"

	summary, err := s.acquirer.Refresh(c.Context(), admin.TriggerManual, force)
	if err != nil {
		return toFiberError(err)
	}

	return c.Status(fiber.StatusOK).JSON(SummaryResponse{Summary: summary})
}
