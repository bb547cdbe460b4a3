package handlers

import (
	"strconv"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/gofiber/fiber/v3"
)

// SummaryResponse is returned by GET /api/v1/dataset/summary
type SummaryResponse struct {
	Summary *acquire.Summary `json:"summary"`
	Cached  bool             `json:"cached"`
}

// GetDatasetSummary handles GET /api/v1/dataset/summary
func (s *Server) GetDatasetSummary(c fiber.Ctx) error {
	req := admin.SummaryRequest{
		Source:  c.Query("source", acquire.ShortcutNYC),
		Start:   c.Query("start"),
		End:     c.Query("end"),
		Preview: -1,
	}

	if raw := c.Query("preview"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ErrInvalidPreview
		}

		req.Preview = n
	}

	spec, err := acquire.ParseSpecifier(req.Source)
	if err != nil {
		return toFiberError(err)
	}

	if spec.Kind == acquire.KindLocalPath && !s.opts.AllowLocalSources {
		return ErrLocalSourceForbidden
	}

	dr, err := dataset.ParseDateRange(req.Start, req.End)
	if err != nil {
		return toFiberError(err)
	}

	ctx := c.Context()

	// Shortcuts are case-insensitive, so key the cache on the canonical form. A forced update
	// must always reach the remote and is never served from or stored in the cache.
	req.Source = spec.String()
	useCache := s.summaries != nil && spec.Kind != acquire.KindForcedUpdate

	if useCache {
		cached, err := s.summaries.GetSummary(ctx, req)
		if err != nil {
			s.log.WithError(err).Warn("Failed to read summary cache")
		} else if cached != nil {
			return c.Status(fiber.StatusOK).JSON(SummaryResponse{Summary: cached.Summary, Cached: true})
		}
	}

	_, summary, err := s.acquirer.LoadAndPreview(ctx, req.Source, req.Preview, dr)
	if err != nil {
		return toFiberError(err)
	}

	// Degraded results are not cached so a recovered source is picked up on the next request
	if useCache && !summary.Degraded {
		if err := s.summaries.SetSummary(ctx, req, summary, s.clock.Now()); err != nil {
			s.log.WithError(err).Warn("Failed to store summary in cache")
		}
	}

	return c.Status(fiber.StatusOK).JSON(SummaryResponse{Summary: summary})
}
