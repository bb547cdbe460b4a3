package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/sirupsen/logrus"
)

var errUnexpectedStatus = errors.New("unexpected status")

// HTTPFetcher downloads payloads over HTTP(S). A strict attempt is made first; if it fails on
// certificate verification and the insecure fallback is enabled, one more attempt is made with
// verification disabled and the result is tagged relaxed.
type HTTPFetcher struct {
	log           logrus.FieldLogger
	strict        *http.Client
	relaxed       *http.Client
	userAgent     string
	maxBytes      int64
	allowInsecure bool
}

// NewHTTPFetcher creates an HTTP fetcher from configuration
func NewHTTPFetcher(log logrus.FieldLogger, cfg *Config) (*HTTPFetcher, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetcher config: %w", err)
	}

	return &HTTPFetcher{
		log:           log.WithField("component", "fetcher.http"),
		strict:        newHTTPClient(cfg, false),
		relaxed:       newHTTPClient(cfg, true),
		userAgent:     cfg.UserAgent,
		maxBytes:      cfg.MaxBytes,
		allowInsecure: cfg.AllowInsecureFallback,
	}, nil
}

func newHTTPClient(cfg *Config, insecure bool) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     cfg.KeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: insecure, //nolint:gosec // Only used for the logged fallback attempt
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %w", ErrNetwork, rawURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	mode := TLSModeStrict
	if u.Scheme == "http" {
		mode = TLSModeNone
	}

	body, err := f.get(ctx, f.strict, rawURL, u.Scheme, mode)
	if err != nil && f.allowInsecure && isCertificateError(err) {
		f.log.WithError(err).WithField("url", rawURL).
			Warn("Certificate verification failed, retrying with verification disabled")

		mode = TLSModeRelaxed
		body, err = f.get(ctx, f.relaxed, rawURL, u.Scheme, mode)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrNetwork, rawURL, err)
	}

	f.log.WithFields(logrus.Fields{
		"url":      rawURL,
		"bytes":    len(body),
		"tls_mode": mode,
	}).Info("Fetched remote payload")

	return &Result{
		URL:       rawURL,
		Body:      body,
		TLSMode:   mode,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, client *http.Client, rawURL, scheme, mode string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}

		observability.RecordFetch(scheme, mode, status, time.Since(start).Seconds(), len(body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", errUnexpectedStatus, resp.StatusCode, string(snippet))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if int64(len(data)) > f.maxBytes {
		return nil, ErrPayloadTooLarge
	}

	if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
		return nil, fmt.Errorf("truncated response: got %d of %d bytes: %w", len(data), resp.ContentLength, io.ErrUnexpectedEOF)
	}

	return data, nil
}

func isCertificateError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
