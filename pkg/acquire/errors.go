package acquire

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/ethpandaops/crashpull/pkg/fetcher"
)

// Stages an acquisition can fail in
const (
	StageRequest    = "request"
	StageProbe      = "probe"
	StageFetch      = "fetch"
	StageRead       = "read"
	StageCacheRead  = "cache-read"
	StageCacheWrite = "cache-write"
	StageParse      = "parse"
)

//nolint:gochecknoglobals // Error taxonomy shared with the packages that raise them
var (
	// ErrNetwork covers an unreachable remote, a timeout or a non-2xx response
	ErrNetwork = fetcher.ErrNetwork
	// ErrCacheMiss is returned when no persisted cache pair exists
	ErrCacheMiss = cache.ErrCacheMiss
	// ErrCacheCorrupt is returned when the persisted pair is unreadable or inconsistent
	ErrCacheCorrupt = cache.ErrCacheCorrupt
	// ErrInvalidDateRange is returned for a range whose start is after its end
	ErrInvalidDateRange = dataset.ErrInvalidDateRange
)

var (
	// ErrFileNotFound is returned when an explicit local path does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrNoDataAvailable is the terminal failure: no usable cache and no usable network path
	ErrNoDataAvailable = errors.New("no data source available")
	// ErrOffline is returned when the connectivity probe reports no network path
	ErrOffline = errors.New("remote source is unreachable")
)

// StageError is the single error surfaced for a failed acquisition. It names the stage that
// failed and whether a fallback was attempted before giving up.
type StageError struct {
	Stage             string
	FallbackAttempted bool
	Err               error
}

func (e *StageError) Error() string {
	fallback := "no fallback attempted"
	if e.FallbackAttempted {
		fallback = "fallback attempted"
	}

	return fmt.Sprintf("%s failed (%s): %v", e.Stage, fallback, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage of err, or "" when err is not a StageError
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}

	return ""
}

// errorType classifies err for the errors metric
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrNoDataAvailable):
		return "no_data"
	case errors.Is(err, ErrFileNotFound):
		return "file_not_found"
	case errors.Is(err, ErrInvalidDateRange):
		return "invalid_range"
	case errors.Is(err, ErrCacheCorrupt):
		return "cache_corrupt"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "other"
	}
}
