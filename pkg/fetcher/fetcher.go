package fetcher

import (
	"context"
	"errors"
	"time"
)

// TLS modes a payload was fetched with
const (
	TLSModeStrict  = "strict"
	TLSModeRelaxed = "relaxed"
	TLSModeNone    = "none"
)

var (
	// ErrNetwork is returned when the remote is unreachable, times out, answers with a non-2xx
	// status or delivers a truncated payload
	ErrNetwork = errors.New("network error")
	// ErrUnsupportedScheme is returned for URLs no fetcher handles
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrPayloadTooLarge is returned when a payload exceeds the configured limit
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")
)

// Result is a fetched payload. The body is returned as received; parsing happens downstream.
type Result struct {
	URL       string
	Body      []byte
	TLSMode   string
	FetchedAt time.Time
}

// Fetcher retrieves a remote payload
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}
