package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
	"github.com/ethpandaops/crashpull/pkg/fetcher"
	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/ethpandaops/crashpull/pkg/probe"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// CacheStore is the persistence the orchestrator reads from and refreshes
type CacheStore interface {
	Read(ctx context.Context) (*dataset.ParseResult, *cache.Metadata, error)
	Write(ctx context.Context, ds *dataset.Dataset, meta *cache.Metadata) error
}

// Components are the collaborators an Orchestrator coordinates
type Components struct {
	Prober  probe.Prober
	Fetcher fetcher.Fetcher
	Store   CacheStore
	Parser  dataset.Parser
	// Clock defaults to the real clock
	Clock clockwork.Clock
}

// Orchestrator is the acquisition state machine
type Orchestrator struct {
	log     logrus.FieldLogger
	cfg     *Config
	prober  probe.Prober
	fetcher fetcher.Fetcher
	store   CacheStore
	parser  dataset.Parser
	clock   clockwork.Clock
}

// outcome is a loaded dataset before filtering
type outcome struct {
	result         *dataset.ParseResult
	source         cache.Source
	parser         string
	meta           *cache.Metadata
	tlsMode        string
	degraded       bool
	fallbackReason string
}

var errMissingComponent = errors.New("prober, fetcher, store and parser are required")

// NewOrchestrator creates an orchestrator
func NewOrchestrator(log logrus.FieldLogger, cfg *Config, c Components) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid acquire config: %w", err)
	}

	if c.Prober == nil || c.Fetcher == nil || c.Store == nil || c.Parser == nil {
		return nil, errMissingComponent
	}

	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	return &Orchestrator{
		log:     log.WithField("component", "acquire"),
		cfg:     cfg,
		prober:  c.Prober,
		fetcher: c.Fetcher,
		store:   c.Store,
		parser:  c.Parser,
		clock:   c.Clock,
	}, nil
}

// LoadAndPreview resolves a source string, acquires it and attaches up to preview records to
// the summary. A negative preview uses the configured default.
func (o *Orchestrator) LoadAndPreview(ctx context.Context, source string, preview int, dr *dataset.DateRange) (*dataset.Dataset, *Summary, error) {
	spec, err := ParseSpecifier(source)
	if err != nil {
		return nil, nil, &StageError{Stage: StageRequest, Err: err}
	}

	ds, summary, err := o.Acquire(ctx, spec, dr)
	if err != nil {
		return nil, nil, err
	}

	if preview < 0 {
		preview = o.cfg.PreviewRows
	}

	summary.Preview = ds.Head(preview)

	return ds, summary, nil
}

// Acquire produces the dataset named by spec, filtered to dr when dr is set
func (o *Orchestrator) Acquire(ctx context.Context, spec Specifier, dr *dataset.DateRange) (*dataset.Dataset, *Summary, error) {
	start := o.clock.Now()
	requestID := uuid.NewString()

	log := o.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"source":     spec.String(),
		"kind":       spec.Kind,
		"range":      dr.String(),
	})

	if err := dr.Validate(); err != nil {
		return nil, nil, o.fail(log, spec, start, &StageError{Stage: StageRequest, Err: err})
	}

	var (
		out *outcome
		err error
	)

	switch spec.Kind {
	case KindSample:
		out, err = o.loadSample()
	case KindLocalPath:
		out, err = o.loadLocal(spec.Location)
	case KindRemoteURL:
		out, err = o.loadRemote(ctx, log, spec.Location)
	case KindCacheOnly:
		out, err = o.loadCacheOnly(ctx)
	case KindForcedUpdate:
		out, err = o.loadForced(ctx, log)
	case KindDefaultRemote:
		out, err = o.loadDefault(ctx, log)
	default:
		err = &StageError{Stage: StageRequest, Err: fmt.Errorf("unknown source kind %q", spec.Kind)}
	}

	if err != nil {
		return nil, nil, o.fail(log, spec, start, err)
	}

	ds := dr.Filter(out.result.Dataset)

	summary := newSummary(ds, out, dr, o.cfg.TopFactors)
	summary.RequestID = requestID
	summary.Specifier = spec
	summary.Duration = JSONDuration(o.clock.Since(start))

	result := "success"
	if out.degraded {
		result = "degraded"
	}

	observability.RecordAcquisition(string(spec.Kind), string(out.source), result, time.Duration(summary.Duration).Seconds())

	entry := log.WithFields(logrus.Fields{
		"served_from": out.source,
		"rows":        summary.Rows,
		"total_rows":  summary.TotalRows,
		"skipped":     summary.Skipped,
	})

	if out.degraded {
		entry.WithField("reason", out.fallbackReason).Warn("Acquisition served degraded data")
	} else {
		entry.Info("Acquisition complete")
	}

	return ds, summary, nil
}

func (o *Orchestrator) fail(log logrus.FieldLogger, spec Specifier, start time.Time, err error) error {
	observability.RecordAcquisition(string(spec.Kind), "none", "error", o.clock.Since(start).Seconds())
	observability.RecordError("acquire", errorType(err))
	log.WithError(err).Warn("Acquisition failed")

	return err
}

func (o *Orchestrator) loadSample() (*outcome, error) {
	result, err := o.parse(bytes.NewReader(sampleCSV))
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}

	return &outcome{
		result: result,
		source: cache.SourceSample,
		parser: o.parser.Name(),
		meta: &cache.Metadata{
			CacheTimestamp: o.clock.Now().UTC(),
			Source:         cache.SourceSample,
			URL:            sampleLocation,
		},
	}, nil
}

func (o *Orchestrator) loadLocal(path string) (*outcome, error) {
	f, err := os.Open(path) //nolint:gosec // Path supplied by the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s: %w", ErrFileNotFound, path, err)
		}

		return nil, &StageError{Stage: StageRead, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			o.log.WithError(closeErr).Debug("Failed to close local file")
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, &StageError{Stage: StageRead, Err: err}
	}

	if info.IsDir() {
		return nil, &StageError{Stage: StageRead, Err: fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)}
	}

	result, err := o.parse(f)
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}

	return &outcome{
		result: result,
		source: cache.SourceLocal,
		parser: o.parser.Name(),
		meta: &cache.Metadata{
			CacheTimestamp: info.ModTime().UTC(),
			Source:         cache.SourceLocal,
			URL:            path,
		},
	}, nil
}

// loadRemote fetches an explicit URL. Nothing is cached and there is nothing to fall back to.
func (o *Orchestrator) loadRemote(ctx context.Context, log logrus.FieldLogger, url string) (*outcome, error) {
	res, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	result, err := o.parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}

	log.WithField("tls_mode", res.TLSMode).Debug("Loaded explicit remote URL")

	fetchedAt := res.FetchedAt.UTC()

	return &outcome{
		result:  result,
		source:  cache.SourceAPI,
		parser:  o.parser.Name(),
		tlsMode: res.TLSMode,
		meta: &cache.Metadata{
			CacheTimestamp:     fetchedAt,
			Source:             cache.SourceAPI,
			LastUpdatedFromAPI: &fetchedAt,
			URL:                url,
		},
	}, nil
}

// loadCacheOnly never touches the network
func (o *Orchestrator) loadCacheOnly(ctx context.Context) (*outcome, error) {
	result, meta, err := o.store.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			err = fmt.Errorf("%w: %w", ErrNoDataAvailable, err)
		}

		return nil, &StageError{Stage: StageCacheRead, Err: err}
	}

	return o.cached(result, meta), nil
}

// loadForced refreshes unconditionally and falls back to any readable cache
func (o *Orchestrator) loadForced(ctx context.Context, log logrus.FieldLogger) (*outcome, error) {
	out, failure := o.refresh(ctx, log)
	if failure == nil {
		return out, nil
	}

	result, meta, err := o.store.Read(ctx)

	return o.fallback(log, failure, result, meta, err)
}

// loadDefault serves a fresh cache, otherwise refreshes and falls back to a stale cache
func (o *Orchestrator) loadDefault(ctx context.Context, log logrus.FieldLogger) (*outcome, error) {
	result, meta, readErr := o.store.Read(ctx)

	switch {
	case readErr == nil && !cache.NeedsRefresh(meta, o.clock.Now()):
		return o.cached(result, meta), nil
	case readErr == nil:
		log.WithField("cache_timestamp", meta.CacheTimestamp).Info("Cache is stale, refreshing")
	case errors.Is(readErr, ErrCacheMiss):
		log.Info("No cache present, fetching")
	default:
		log.WithError(readErr).Warn("Cache is unusable, fetching")
	}

	out, failure := o.refresh(ctx, log)
	if failure == nil {
		return out, nil
	}

	return o.fallback(log, failure, result, meta, readErr)
}

// refresh runs probe, fetch, parse and cache write. A failed cache write does not fail the
// refresh; the fetched rows are returned marked degraded.
func (o *Orchestrator) refresh(ctx context.Context, log logrus.FieldLogger) (*outcome, *StageError) {
	if !o.prober.IsOnline(ctx) {
		return nil, &StageError{Stage: StageProbe, Err: ErrOffline}
	}

	res, err := o.fetcher.Fetch(ctx, o.cfg.URL)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	result, err := o.parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}

	out := &outcome{
		result:  result,
		source:  cache.SourceAPI,
		parser:  o.parser.Name(),
		meta:    cache.NewAPIMetadata(o.cfg.URL, o.clock.Now()),
		tlsMode: res.TLSMode,
	}

	if res.TLSMode == fetcher.TLSModeRelaxed {
		out.degraded = true
		out.fallbackReason = "certificate verification disabled for download"
	}

	if err := o.store.Write(ctx, result.Dataset, out.meta); err != nil {
		observability.RecordCacheWrite("error")
		observability.RecordError("acquire", "cache_write")

		werr := &StageError{Stage: StageCacheWrite, Err: err}
		log.WithError(werr).Error("Failed to persist refreshed dataset, serving it uncached")

		out.degraded = true
		out.fallbackReason = werr.Error()

		return out, nil
	}

	observability.RecordCacheWrite("success")
	observability.SetCacheState(result.Dataset.Len(), 0)

	return out, nil
}

// fallback serves the cache read earlier, or turns the refresh failure into the terminal error
func (o *Orchestrator) fallback(log logrus.FieldLogger, failure *StageError, result *dataset.ParseResult, meta *cache.Metadata, readErr error) (*outcome, error) {
	if readErr == nil {
		log.WithError(failure).Warn("Refresh failed, falling back to cached dataset")

		out := o.cached(result, meta)
		out.degraded = true
		out.fallbackReason = failure.Error()

		return out, nil
	}

	failure.FallbackAttempted = true
	failure.Err = fmt.Errorf("%w: %w; cache: %w", ErrNoDataAvailable, failure.Err, readErr)

	return nil, failure
}

func (o *Orchestrator) cached(result *dataset.ParseResult, meta *cache.Metadata) *outcome {
	observability.SetCacheState(result.Dataset.Len(), cache.Age(meta, o.clock.Now()).Seconds())

	return &outcome{
		result: result,
		source: cache.SourceCache,
		parser: o.parser.Name(),
		meta:   meta,
	}
}

func (o *Orchestrator) parse(r io.Reader) (*dataset.ParseResult, error) {
	result, err := o.parser.Parse(r)
	if err != nil {
		return nil, err
	}

	observability.RecordParse(o.parser.Name(), result.Dataset.Len(), result.Skipped)

	return result, nil
}
