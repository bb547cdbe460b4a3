package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Router dispatches fetches to a fetcher by URL scheme
type Router struct {
	fetchers map[string]Fetcher
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for the given schemes
func (r *Router) Handle(f Fetcher, schemes ...string) *Router {
	for _, s := range schemes {
		r.fetchers[strings.ToLower(s)] = f
	}

	return r
}

// Fetch implements Fetcher
func (r *Router) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %w", ErrNetwork, rawURL, err)
	}

	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	return f.Fetch(ctx, rawURL)
}
