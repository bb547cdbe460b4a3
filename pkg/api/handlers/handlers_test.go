package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethpandaops/crashpull/internal/testutil"
	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loadCall struct {
	source  string
	preview int
	dr      *dataset.DateRange
}

// mockAcquirer implements Acquirer for testing
type mockAcquirer struct {
	summary    *acquire.Summary
	err        error
	loads      []loadCall
	refreshes  []bool
	triggers   []string
	refreshErr error
}

func (m *mockAcquirer) LoadAndPreview(_ context.Context, source string, preview int, dr *dataset.DateRange) (*dataset.Dataset, *acquire.Summary, error) {
	m.loads = append(m.loads, loadCall{source: source, preview: preview, dr: dr})
	if m.err != nil {
		return nil, nil, m.err
	}

	return &dataset.Dataset{}, m.summary, nil
}

func (m *mockAcquirer) Refresh(_ context.Context, trigger string, force bool) (*acquire.Summary, error) {
	m.refreshes = append(m.refreshes, force)
	m.triggers = append(m.triggers, trigger)
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}

	return m.summary, nil
}

// mockInspector implements CacheInspector for testing
type mockInspector struct {
	status *admin.CacheStatus
	err    error
}

func (m *mockInspector) Status(context.Context) (*admin.CacheStatus, error) {
	return m.status, m.err
}

func newTestApp(server *Server) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}

			return c.Status(code).JSON(fiber.Map{"error": err.Error(), "code": code})
		},
	})

	app.Get("/healthz", server.Healthz)
	server.Register(app.Group("/api/v1"))

	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, http.NoBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded), string(body))

	return resp.StatusCode, decoded
}

func sampleSummary() *acquire.Summary {
	return &acquire.Summary{
		RequestID: "req-1",
		Specifier: acquire.Specifier{Kind: acquire.KindDefaultRemote},
		Source:    cache.SourceCache,
		Rows:      3,
		TotalRows: 3,
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(NewServer(&mockAcquirer{}, &mockInspector{}, nil, Options{}, logrus.New()))

	code, body := doRequest(t, app, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetDatasetSummary(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		acquirerErr error
		opts        Options
		wantCode    int
		wantSource  string
		wantPreview int
		wantLoad    bool
	}{
		{name: "defaults", query: "", wantCode: http.StatusOK, wantSource: "nyc", wantPreview: -1, wantLoad: true},
		{name: "explicit source and preview", query: "?source=sample&preview=3", wantCode: http.StatusOK, wantSource: "sample", wantPreview: 3, wantLoad: true},
		{name: "date range", query: "?start=2024-01-01&end=2024-06-15", wantCode: http.StatusOK, wantSource: "nyc", wantPreview: -1, wantLoad: true},
		{name: "inverted range", query: "?start=2024-06-15&end=2024-01-01", wantCode: http.StatusBadRequest},
		{name: "malformed date", query: "?start=yesterday", wantCode: http.StatusBadRequest},
		{name: "bad preview", query: "?preview=lots", wantCode: http.StatusBadRequest},
		{name: "negative preview", query: "?preview=-2", wantCode: http.StatusBadRequest},
		{name: "unknown shortcut", query: "?source=nyc:maybe", wantCode: http.StatusBadRequest},
		{name: "local path forbidden", query: "?source=/etc/passwd", wantCode: http.StatusForbidden},
		{name: "local path allowed", query: "?source=data/x.csv", opts: Options{AllowLocalSources: true}, wantCode: http.StatusOK, wantSource: "data/x.csv", wantPreview: -1, wantLoad: true},
		{
			name:        "no data available",
			acquirerErr: &acquire.StageError{Stage: acquire.StageProbe, FallbackAttempted: true, Err: fmt.Errorf("%w: %w", acquire.ErrNoDataAvailable, acquire.ErrOffline)},
			wantCode:    http.StatusServiceUnavailable,
			wantSource:  "nyc", wantPreview: -1, wantLoad: true,
		},
		{
			name:        "network error",
			query:       "?source=https://mirror.test/a.csv",
			acquirerErr: &acquire.StageError{Stage: acquire.StageFetch, Err: acquire.ErrNetwork},
			wantCode:    http.StatusBadGateway,
			wantSource:  "https://mirror.test/a.csv", wantPreview: -1, wantLoad: true,
		},
		{
			name:        "file not found",
			query:       "?source=missing.csv",
			opts:        Options{AllowLocalSources: true},
			acquirerErr: &acquire.StageError{Stage: acquire.StageRead, Err: acquire.ErrFileNotFound},
			wantCode:    http.StatusNotFound,
			wantSource:  "missing.csv", wantPreview: -1, wantLoad: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq := &mockAcquirer{summary: sampleSummary(), err: tt.acquirerErr}
			app := newTestApp(NewServer(acq, &mockInspector{}, nil, tt.opts, logrus.New()))

			code, body := doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary"+tt.query)
			assert.Equal(t, tt.wantCode, code, body)

			if !tt.wantLoad {
				assert.Empty(t, acq.loads)
				return
			}

			require.Len(t, acq.loads, 1)
			assert.Equal(t, tt.wantSource, acq.loads[0].source)
			assert.Equal(t, tt.wantPreview, acq.loads[0].preview)

			if tt.wantCode == http.StatusOK {
				assert.Equal(t, false, body["cached"])
			} else {
				assert.Contains(t, body["error"], "failed")
			}
		})
	}
}

func TestGetDatasetSummary_DateRangeForwarded(t *testing.T) {
	acq := &mockAcquirer{summary: sampleSummary()}
	app := newTestApp(NewServer(acq, &mockInspector{}, nil, Options{}, logrus.New()))

	code, _ := doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary?start=2024-01-01&end=2024-06-15")
	require.Equal(t, http.StatusOK, code)

	require.Len(t, acq.loads, 1)
	dr := acq.loads[0].dr
	require.NotNil(t, dr)
	assert.Equal(t, "2024-01-01..2024-06-15", dr.String())
}

func TestGetDatasetSummary_UsesSummaryCache(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	summaries := admin.NewCacheManager(client, "crashpull", time.Minute)

	acq := &mockAcquirer{summary: sampleSummary()}
	app := newTestApp(NewServer(acq, &mockInspector{}, summaries, Options{}, logrus.New()))

	code, body := doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary?source=nyc&preview=2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["cached"])

	code, body = doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary?source=nyc&preview=2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["cached"])

	assert.Len(t, acq.loads, 1, "second request is served from Redis")
}

func TestGetDatasetSummary_ForcedUpdateSkipsSummaryCache(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	summaries := admin.NewCacheManager(client, "crashpull", time.Minute)

	forced := sampleSummary()
	forced.Specifier = acquire.Specifier{Kind: acquire.KindForcedUpdate}
	forced.Source = cache.SourceAPI

	acq := &mockAcquirer{summary: forced}
	app := newTestApp(NewServer(acq, &mockInspector{}, summaries, Options{}, logrus.New()))

	for i := 0; i < 2; i++ {
		code, body := doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary?source=nyc:update")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, false, body["cached"])
	}

	require.Len(t, acq.loads, 2, "every forced update reaches the acquirer")

	stored, err := summaries.GetSummary(context.Background(), admin.SummaryRequest{Source: acquire.ShortcutNYCUpdate, Preview: -1})
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGetDatasetSummary_ShortcutCaseSharesCacheEntry(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	summaries := admin.NewCacheManager(client, "crashpull", time.Minute)

	acq := &mockAcquirer{summary: sampleSummary()}
	app := newTestApp(NewServer(acq, &mockInspector{}, summaries, Options{}, logrus.New()))

	code, body := doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary?source=NYC")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["cached"])

	code, body = doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary?source=nyc")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["cached"])

	require.Len(t, acq.loads, 1)
	assert.Equal(t, acquire.ShortcutNYC, acq.loads[0].source)
}

func TestGetDatasetSummary_DegradedNotCached(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	summaries := admin.NewCacheManager(client, "crashpull", time.Minute)

	degraded := sampleSummary()
	degraded.Degraded = true

	acq := &mockAcquirer{summary: degraded}
	app := newTestApp(NewServer(acq, &mockInspector{}, summaries, Options{}, logrus.New()))

	for i := 0; i < 2; i++ {
		code, body := doRequest(t, app, http.MethodGet, "/api/v1/dataset/summary")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, false, body["cached"])
	}

	assert.Len(t, acq.loads, 2)
}

func TestGetCacheStatus(t *testing.T) {
	inspector := &mockInspector{status: &admin.CacheStatus{Present: true, Stale: false, DataPath: "data/x.csv"}}
	app := newTestApp(NewServer(&mockAcquirer{}, inspector, nil, Options{}, logrus.New()))

	code, body := doRequest(t, app, http.MethodGet, "/api/v1/cache/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["present"])
	assert.Equal(t, "data/x.csv", body["data_path"])

	inspector.err = errors.New("permission denied")

	code, _ = doRequest(t, app, http.MethodGet, "/api/v1/cache/status")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRefreshCache(t *testing.T) {
	acq := &mockAcquirer{summary: sampleSummary()}
	app := newTestApp(NewServer(acq, &mockInspector{}, nil, Options{}, logrus.New()))

	code, _ := doRequest(t, app, http.MethodPost, "/api/v1/cache/refresh")
	require.Equal(t, http.StatusOK, code)

	code, _ = doRequest(t, app, http.MethodPost, "/api/v1/cache/refresh?force=true")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, []bool{false, true}, acq.refreshes)
	assert.Equal(t, []string{admin.TriggerManual, admin.TriggerManual}, acq.triggers)

	acq.refreshErr = &acquire.StageError{Stage: acquire.StageProbe, FallbackAttempted: true, Err: acquire.ErrNoDataAvailable}

	code, body := doRequest(t, app, http.MethodPost, "/api/v1/cache/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body["error"], "probe failed (fallback attempted)")
}
