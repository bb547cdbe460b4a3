package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ethpandaops/crashpull/pkg/fetcher"
)

// CountingProber reports a fixed connectivity answer and counts how often it was asked
type CountingProber struct {
	mu     sync.Mutex
	online bool
	calls  int
}

// NewCountingProber creates a prober answering online
func NewCountingProber(online bool) *CountingProber {
	return &CountingProber{online: online}
}

// IsOnline implements probe.Prober
func (p *CountingProber) IsOnline(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++

	return p.online
}

// SetOnline changes the answer for subsequent calls
func (p *CountingProber) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.online = online
}

// Calls returns the number of probes made
func (p *CountingProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

// CountingFetcher serves a canned payload, or fails with Err, and counts network calls
type CountingFetcher struct {
	mu      sync.Mutex
	body    string
	err     error
	tlsMode string
	calls   int
	urls    []string
}

// NewCountingFetcher creates a fetcher returning body
func NewCountingFetcher(body string) *CountingFetcher {
	return &CountingFetcher{body: body, tlsMode: fetcher.TLSModeStrict}
}

// NewFailingFetcher creates a fetcher that always fails with err
func NewFailingFetcher(err error) *CountingFetcher {
	return &CountingFetcher{err: err}
}

// WithTLSMode sets the TLS mode reported on results
func (f *CountingFetcher) WithTLSMode(mode string) *CountingFetcher {
	f.tlsMode = mode
	return f
}

// Fetch implements fetcher.Fetcher
func (f *CountingFetcher) Fetch(_ context.Context, url string) (*fetcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.urls = append(f.urls, url)

	if f.err != nil {
		return nil, f.err
	}

	return &fetcher.Result{
		URL:       url,
		Body:      []byte(f.body),
		TLSMode:   f.tlsMode,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Calls returns the number of fetches made
func (f *CountingFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// URLs returns the fetched URLs in call order
func (f *CountingFetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.urls))
	copy(out, f.urls)

	return out
}
