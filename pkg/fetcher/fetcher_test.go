package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "crash_date,crash_time,borough\n2024-01-01,10:00,BRONX\n"

func newTestFetcher(t *testing.T, mutate func(*Config)) *HTTPFetcher {
	t.Helper()

	cfg := &Config{
		URL:                   "https://example.test/crashes.csv",
		Timeout:               2 * time.Second,
		AllowInsecureFallback: true,
		UserAgent:             "crashpull-test",
	}

	if mutate != nil {
		mutate(cfg)
	}

	f, err := NewHTTPFetcher(logrus.New(), cfg)
	require.NoError(t, err)

	return f
}

func TestHTTPFetcher_Success(t *testing.T) {
	var userAgent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	res, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL+"/crashes.csv")
	require.NoError(t, err)

	assert.Equal(t, payload, string(res.Body))
	assert.Equal(t, TLSModeNone, res.TLSMode)
	assert.Equal(t, "crashpull-test", userAgent)
	assert.False(t, res.FetchedAt.IsZero())
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", status)
			}))
			defer srv.Close()

			_, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
			require.ErrorIs(t, err, ErrNetwork)
		})
	}
}

func TestHTTPFetcher_RelaxedRetryOnCertificateError(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	res, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, TLSModeRelaxed, res.TLSMode)
	assert.Equal(t, payload, string(res.Body))
	// The strict attempt fails during the handshake and never reaches the handler
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcher_NoRelaxedRetryWhenDisabled(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := newTestFetcher(t, func(c *Config) { c.AllowInsecureFallback = false })

	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
	assert.True(t, isCertificateError(err))
}

func TestHTTPFetcher_NoRelaxedRetryForOtherErrors(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newTestFetcher(t, func(c *Config) { c.Timeout = 100 * time.Millisecond })

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)

	require.ErrorIs(t, err, ErrNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPFetcher_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPFetcher_PayloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := newTestFetcher(t, func(c *Config) { c.MaxBytes = 10 })

	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestHTTPFetcher_UnsupportedScheme(t *testing.T) {
	_, err := newTestFetcher(t, nil).Fetch(context.Background(), "ftp://example.test/file.csv")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

type stubFetcher struct {
	calls int
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	return &Result{URL: url, Body: []byte(payload)}, nil
}

func TestRouter(t *testing.T) {
	web := &stubFetcher{}
	bucket := &stubFetcher{err: errors.New("boom")}

	r := NewRouter().Handle(web, "http", "https").Handle(bucket, "s3")

	res, err := r.Fetch(context.Background(), "HTTPS://example.test/a.csv")
	require.NoError(t, err)
	assert.Equal(t, payload, string(res.Body))
	assert.Equal(t, 1, web.calls)

	_, err = r.Fetch(context.Background(), "s3://bucket/a.csv")
	require.Error(t, err)
	assert.Equal(t, 1, bucket.calls)

	_, err = r.Fetch(context.Background(), "gopher://example.test/a.csv")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url     string
		bucket  string
		key     string
		wantErr bool
	}{
		{url: "s3://mirror/nyc/crashes.csv", bucket: "mirror", key: "nyc/crashes.csv"},
		{url: "s3://mirror/", wantErr: true},
		{url: "s3:///crashes.csv", wantErr: true},
		{url: "https://mirror/crashes.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			bucket, key, err := parseS3URL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestS3Fetcher_PathStyleEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mirror/nyc/crashes.csv" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	cfg := &Config{
		URL:     "s3://mirror/nyc/crashes.csv",
		Timeout: 2 * time.Second,
		S3:      S3Config{Region: "us-east-1", EndpointURL: srv.URL},
	}

	f, err := NewS3Fetcher(context.Background(), logrus.New(), cfg)
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), "s3://mirror/nyc/crashes.csv")
	require.NoError(t, err)
	assert.Equal(t, payload, string(res.Body))

	_, err = f.Fetch(context.Background(), "s3://mirror/nyc/missing.csv")
	require.ErrorIs(t, err, ErrNetwork)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{name: "valid", config: Config{URL: DefaultURL, Timeout: time.Second, MaxBytes: 1}},
		{name: "missing url", config: Config{Timeout: time.Second, MaxBytes: 1}, wantErr: ErrURLRequired},
		{name: "zero timeout", config: Config{URL: DefaultURL, MaxBytes: 1}, wantErr: ErrInvalidTimeout},
		{name: "zero max bytes", config: Config{URL: DefaultURL, Timeout: time.Second}, wantErr: ErrInvalidMaxBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	assert.Equal(t, DefaultURL, cfg.URL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	require.NoError(t, cfg.Validate())
}
