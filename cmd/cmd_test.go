package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/admin"
	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/ethpandaops/crashpull/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, fetcher.DefaultURL, cfg.Remote.URL)
	assert.Equal(t, "data", cfg.Cache.Dir)
	assert.Equal(t, "nyc_crashes_cached.csv", cfg.Cache.DataFile)
	assert.Equal(t, "nyc_crashes_meta.json", cfg.Cache.MetaFile)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.Remote.AllowInsecureFallback)
	assert.Equal(t, 5, cfg.Acquire.PreviewRows)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, `
logging: debug
remote:
  url: https://mirror.example/crashes.csv
  timeout: 5s
  allowInsecureFallback: false
cache:
  dir: /var/lib/crashpull
  parser: csv
acquire:
  previewRows: 3
redis:
  address: redis://localhost:6379/1
scheduler:
  enabled: true
  schedule: "0 */4 * * *"
  mode: force
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging)
	assert.Equal(t, "https://mirror.example/crashes.csv", cfg.Remote.URL)
	assert.Equal(t, cfg.Remote.URL, cfg.Acquire.URL)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.False(t, cfg.Remote.AllowInsecureFallback)
	assert.Equal(t, "/var/lib/crashpull", cfg.Cache.Dir)
	assert.Equal(t, "csv", cfg.Cache.Parser)
	assert.Equal(t, 3, cfg.Acquire.PreviewRows)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Redis.SummaryTTL)
	assert.Equal(t, "force", cfg.Scheduler.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.JobTimeout, "unset keys keep defaults")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
remote:
  url: https://mirror.example/crashes.csv
cache:
  dir: from-file
`)

	t.Setenv(EnvRemoteURL, "s3://bucket/crashes.csv")
	t.Setenv(EnvCacheDir, "/tmp/from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "s3://bucket/crashes.csv", cfg.Remote.URL)
	assert.Equal(t, "/tmp/from-env", cfg.Cache.Dir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "remote: [unterminated"},
		{name: "same cache file names", content: "cache:\n  dataFile: x\n  metaFile: x\n"},
		{name: "negative preview", content: "acquire:\n  previewRows: -1\n"},
		{name: "bad schedule", content: "scheduler:\n  enabled: true\n  schedule: whenever\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func testSummary() *acquire.Summary {
	earliest := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC)

	dr, _ := dataset.ParseDateRange("2024-01-01", "2024-12-31")

	return &acquire.Summary{
		RequestID:      "req-1",
		Specifier:      acquire.Specifier{Kind: acquire.KindDefaultRemote},
		Source:         cache.SourceCache,
		Parser:         "arrow",
		Rows:           4,
		TotalRows:      6,
		Columns:        10,
		Earliest:       &earliest,
		Latest:         &latest,
		Range:          dr,
		Metadata:       cache.NewAPIMetadata("https://example.test/crashes.csv", earliest),
		Degraded:       true,
		FallbackReason: "probe failed (fallback attempted): remote source is unreachable",
		TopFactors:     []acquire.FactorCount{{Factor: "Driver Inattention/Distraction", Count: 3}},
		Missing:        map[string]int{"number_of_persons_injured": 1},
		Preview: []dataset.Record{
			dataset.NewRecord(map[string]string{
				"crash_date":     "01/05/2024",
				"crash_time":     "8:15",
				"borough":        "BROOKLYN",
				"on_street_name": "FULTON ST   ",
			}),
		},
		Duration: acquire.JSONDuration(1500 * time.Millisecond),
	}
}

func TestRender_SummaryText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, FormatText, summaryTmpl, testSummary()))

	out := buf.String()
	assert.Contains(t, out, "Source       nyc (served from cache, parser arrow)")
	assert.Contains(t, out, "Rows         4 of 6 in 2024-01-01..2024-12-31")
	assert.Contains(t, out, "Span         2024-01-05 .. 2024-11-22")
	assert.Contains(t, out, "Degraded     probe failed (fallback attempted)")
	assert.Contains(t, out, "Took         1.5s")
	assert.Contains(t, out, "Missing      1 number of persons injured")
	assert.Contains(t, out, "      3  Driver Inattention/Distraction")
	assert.Contains(t, out, "1. 01/05/2024 8:15  Brooklyn  FULTON ST")
}

func TestRender_SummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, FormatJSON, summaryTmpl, testSummary()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "cache", decoded["source"])
	assert.Equal(t, float64(4), decoded["rows"])
	assert.Equal(t, true, decoded["degraded"])
	assert.Equal(t, "1.5s", decoded["duration"])
}

func TestRender_InvalidFormat(t *testing.T) {
	assert.ErrorIs(t, render(&bytes.Buffer{}, "yaml", summaryTmpl, testSummary()), ErrInvalidFormat)
	assert.ErrorIs(t, validateFormat("xml"), ErrInvalidFormat)
	assert.NoError(t, validateFormat(FormatJSON))
}

func TestRender_CacheStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, FormatText, cacheStatusTmpl, &admin.CacheStatus{
		DataPath: "data/nyc_crashes_cached.csv",
		MetaPath: "data/nyc_crashes_meta.json",
		Stale:    true,
	}))
	assert.Contains(t, buf.String(), "State        missing")

	buf.Reset()

	meta := cache.NewAPIMetadata("https://example.test/crashes.csv", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, render(&buf, FormatText, cacheVerifyTmpl, &admin.VerifyReport{
		CacheStatus: admin.CacheStatus{
			Present:  true,
			Metadata: meta,
			Age:      acquire.JSONDuration(36 * time.Hour),
		},
		Rows:    3,
		Columns: []string{"crash_date", "borough"},
		Undated: 1,
	}))

	out := buf.String()
	assert.Contains(t, out, "State        fresh (age 36h0m0s)")
	assert.Contains(t, out, "URL          https://example.test/crashes.csv")
	assert.Contains(t, out, "Rows         3 (1 without a crash date, 0 skipped)")
	assert.Contains(t, out, "Columns      2: crash_date, borough")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()

	return out.String(), err
}

func TestPullCommand_Sample(t *testing.T) {
	path := writeConfig(t, "cache:\n  dir: "+filepath.Join(t.TempDir(), "data")+"\n")

	out, err := execute(t, "pull", "sample", "--config", path, "--log-level", "error", "--offline=false",
		"--start", "2024-01-01", "--end", "2024-12-31", "--preview", "2", "--format", "json")
	require.NoError(t, err)

	var summary acquire.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))

	assert.Equal(t, cache.SourceSample, summary.Source)
	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, 6, summary.TotalRows)
	assert.Len(t, summary.Preview, 2)
}

func TestPullCommand_Errors(t *testing.T) {
	path := writeConfig(t, "cache:\n  dir: "+filepath.Join(t.TempDir(), "data")+"\n")

	_, err := execute(t, "pull", "nyc:cached", "--config", path, "--log-level", "error",
		"--start", "", "--end", "", "--preview", "-1", "--format", "text")
	require.ErrorIs(t, err, acquire.ErrNoDataAvailable)
	assert.Contains(t, err.Error(), "cache-read failed")

	_, err = execute(t, "pull", "--offline", "--config", path, "--log-level", "error",
		"--start", "", "--end", "", "--preview", "-1", "--format", "text")
	require.ErrorIs(t, err, acquire.ErrNoDataAvailable)
	assert.Contains(t, err.Error(), "probe failed (fallback attempted)")

	_, err = execute(t, "pull", "sample", "--config", path, "--log-level", "error", "--offline=false",
		"--start", "2024-06-01", "--end", "2024-01-01", "--format", "text")
	require.ErrorIs(t, err, dataset.ErrInvalidDateRange)

	_, err = execute(t, "pull", "sample", "--config", path, "--log-level", "error",
		"--start", "", "--end", "", "--format", "csv")
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestCacheStatusCommand(t *testing.T) {
	path := writeConfig(t, "cache:\n  dir: "+filepath.Join(t.TempDir(), "data")+"\n")

	out, err := execute(t, "cache", "status", "--config", path, "--log-level", "error", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "State        missing")

	out, err = execute(t, "cache", "verify", "--config", path, "--log-level", "error", "--format", "json")
	require.NoError(t, err)

	var report admin.VerifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Present)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}
