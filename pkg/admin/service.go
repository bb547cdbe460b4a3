package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/jonboulle/clockwork"
)

// CacheStore is the subset of the cache store the admin service inspects
type CacheStore interface {
	Read(ctx context.Context) (*dataset.ParseResult, *cache.Metadata, error)
	ReadMetadata(ctx context.Context) (*cache.Metadata, error)
	DataPath() string
	MetaPath() string
}

// CacheStatus describes the on-disk cache without loading the records
type CacheStatus struct {
	Present   bool                 `json:"present"`
	Corrupt   bool                 `json:"corrupt"`
	Error     string               `json:"error,omitempty"`
	DataPath  string               `json:"data_path"`
	MetaPath  string               `json:"meta_path"`
	SizeBytes int64                `json:"size_bytes"`
	Metadata  *cache.Metadata      `json:"metadata,omitempty"`
	Age       acquire.JSONDuration `json:"age"`
	Stale     bool                 `json:"stale"`
	// LastRefresh is only known when a Redis cache manager is configured
	LastRefresh *RefreshRecord `json:"last_refresh,omitempty"`
}

// VerifyReport is the result of a full read of the cache
type VerifyReport struct {
	CacheStatus
	Rows     int        `json:"rows"`
	Columns  []string   `json:"columns"`
	Skipped  int        `json:"skipped"`
	Undated  int        `json:"undated"`
	Earliest *time.Time `json:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty"`
}

// Service reports on the cache file pair
type Service struct {
	store        CacheStore
	cacheManager *CacheManager
	clock        clockwork.Clock
}

// NewService creates a new admin service. cacheManager may be nil when Redis is disabled.
func NewService(store CacheStore, cacheManager *CacheManager, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		store:        store,
		cacheManager: cacheManager,
		clock:        clock,
	}
}

// CacheManager returns the summary cache, or nil when Redis is disabled
func (a *Service) CacheManager() *CacheManager {
	return a.cacheManager
}

// Status inspects the metadata record. A missing or corrupt cache is reported, not returned
// as an error.
func (a *Service) Status(ctx context.Context) (*CacheStatus, error) {
	status := &CacheStatus{
		DataPath: a.store.DataPath(),
		MetaPath: a.store.MetaPath(),
		Stale:    true,
	}

	meta, err := a.store.ReadMetadata(ctx)
	if err := a.classify(status, err); err != nil {
		return nil, err
	}

	if meta != nil {
		now := a.clock.Now()

		status.Present = true
		status.Metadata = meta
		status.Age = acquire.JSONDuration(cache.Age(meta, now))
		status.Stale = cache.NeedsRefresh(meta, now)
	}

	if info, err := os.Stat(status.DataPath); err == nil {
		status.SizeBytes = info.Size()
	}

	if a.cacheManager != nil {
		rec, err := a.cacheManager.GetLastRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read last refresh: %w", err)
		}

		status.LastRefresh = rec
	}

	return status, nil
}

// Verify reads and parses the whole cache
func (a *Service) Verify(ctx context.Context) (*VerifyReport, error) {
	status, err := a.Status(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{CacheStatus: *status}
	if !status.Present {
		return report, nil
	}

	result, _, err := a.store.Read(ctx)
	if err := a.classify(&report.CacheStatus, err); err != nil {
		return nil, err
	}

	if result == nil {
		report.Present = false
		return report, nil
	}

	ds := result.Dataset
	report.Rows = ds.Len()
	report.Columns = ds.Columns
	report.Skipped = result.Skipped

	for _, r := range ds.Records {
		if _, ok := r.Day(); !ok {
			report.Undated++
		}
	}

	if earliest, latest, ok := ds.Span(); ok {
		report.Earliest = &earliest
		report.Latest = &latest
	}

	return report, nil
}

// classify records cache miss and corruption on status and returns any other error
func (a *Service) classify(status *CacheStatus, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cache.ErrCacheMiss):
		status.Present = false
		return nil
	case errors.Is(err, cache.ErrCacheCorrupt):
		status.Present = false
		status.Corrupt = true
		status.Error = err.Error()

		return nil
	default:
		return err
	}
}
