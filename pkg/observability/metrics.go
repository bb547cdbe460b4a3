package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// AcquisitionsTotal tracks dataset acquisitions by specifier kind, served source and result
	AcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_acquisitions_total",
			Help: "Total number of dataset acquisitions",
		},
		[]string{"kind", "source", "result"}, // result: success, degraded, error
	)

	// AcquisitionDuration measures end-to-end acquisition time in seconds
	AcquisitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crashpull_acquisition_duration_seconds",
			Help:    "Dataset acquisition duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"kind"},
	)

	// ProbeTotal counts connectivity probes
	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_probe_total",
			Help: "Total number of connectivity probes",
		},
		[]string{"result"}, // result: online, offline
	)

	// ProbeDuration measures connectivity probe time in seconds
	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crashpull_probe_duration_seconds",
			Help:    "Connectivity probe duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	// FetchTotal counts remote fetch attempts
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_fetch_total",
			Help: "Total number of remote fetch attempts",
		},
		[]string{"scheme", "tls_mode", "status"}, // status: success, error
	)

	// FetchDuration measures remote fetch time in seconds
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crashpull_fetch_duration_seconds",
			Help:    "Remote fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"scheme"},
	)

	// FetchBytes counts payload bytes received
	FetchBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_fetch_bytes_total",
			Help: "Total payload bytes received from remote sources",
		},
		[]string{"scheme"},
	)

	// ParsedRows counts rows produced by the parsers
	ParsedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_parsed_rows_total",
			Help: "Total rows parsed",
		},
		[]string{"parser", "outcome"}, // outcome: kept, skipped
	)

	// CacheWrites counts cache pair writes
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_cache_writes_total",
			Help: "Total number of cache writes",
		},
		[]string{"status"}, // status: success, error
	)

	// CacheRows reports the row count of the dataset last read from or written to the cache
	CacheRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashpull_cache_rows",
			Help: "Rows in the cached dataset",
		},
	)

	// CacheAge reports the cache age at the last acquisition
	CacheAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashpull_cache_age_seconds",
			Help: "Age of the cached dataset in seconds",
		},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// SummaryCacheHits tracks hits of the summary cache used by the HTTP API
	SummaryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashpull_summary_cache_hits_total",
			Help: "Total number of summary cache hits",
		},
	)

	// SummaryCacheMisses tracks misses of the summary cache used by the HTTP API
	SummaryCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashpull_summary_cache_misses_total",
			Help: "Total number of summary cache misses",
		},
	)

	// ScheduledRefreshes counts background refresh runs
	ScheduledRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashpull_scheduled_refresh_total",
			Help: "Total number of scheduled refresh runs",
		},
		[]string{"result"},
	)
)

// RecordAcquisition records a finished acquisition
func RecordAcquisition(kind, source, result string, duration float64) {
	AcquisitionsTotal.WithLabelValues(kind, source, result).Inc()
	AcquisitionDuration.WithLabelValues(kind).Observe(duration)
}

// RecordProbe records a connectivity probe
func RecordProbe(online bool, duration float64) {
	result := "offline"
	if online {
		result = "online"
	}

	ProbeTotal.WithLabelValues(result).Inc()
	ProbeDuration.Observe(duration)
}

// RecordFetch records a remote fetch attempt
func RecordFetch(scheme, tlsMode, status string, duration float64, bytes int) {
	FetchTotal.WithLabelValues(scheme, tlsMode, status).Inc()
	FetchDuration.WithLabelValues(scheme).Observe(duration)

	if bytes > 0 {
		FetchBytes.WithLabelValues(scheme).Add(float64(bytes))
	}
}

// RecordParse records parser output
func RecordParse(parser string, kept, skipped int) {
	ParsedRows.WithLabelValues(parser, "kept").Add(float64(kept))
	ParsedRows.WithLabelValues(parser, "skipped").Add(float64(skipped))
}

// RecordCacheWrite records a cache write
func RecordCacheWrite(status string) {
	CacheWrites.WithLabelValues(status).Inc()
}

// SetCacheState records the row count and age of the cache
func SetCacheState(rows int, ageSeconds float64) {
	CacheRows.Set(float64(rows))
	CacheAge.Set(ageSeconds)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordSummaryCacheHit records a summary cache hit
func RecordSummaryCacheHit() {
	SummaryCacheHits.Inc()
}

// RecordSummaryCacheMiss records a summary cache miss
func RecordSummaryCacheMiss() {
	SummaryCacheMisses.Inc()
}

// RecordScheduledRefresh records a background refresh run
func RecordScheduledRefresh(result string) {
	ScheduledRefreshes.WithLabelValues(result).Inc()
}
