package acquire

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/dataset"
)

const columnContributingFactor = "contributing_factor_vehicle_1"

// missingColumns are the casualty counts whose empty values are reported when the column exists
//
//nolint:gochecknoglobals // Fixed column list
var missingColumns = []string{
	"number_of_persons_injured",
	"number_of_persons_killed",
	"number_of_pedestrians_injured",
}

// JSONDuration renders a duration as a Go duration string
type JSONDuration time.Duration

func (d JSONDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler
func (d JSONDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *JSONDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = JSONDuration(v)

	return nil
}

// FactorCount is the number of collisions attributed to one contributing factor
type FactorCount struct {
	Factor string `json:"factor"`
	Count  int    `json:"count"`
}

// Summary describes an acquired dataset. It is the only artifact besides the dataset that
// presentation layers consume.
type Summary struct {
	RequestID string       `json:"request_id"`
	Specifier Specifier    `json:"specifier"`
	Source    cache.Source `json:"source"`
	Parser    string       `json:"parser"`
	// Rows is the count after the date range was applied; TotalRows the count before
	Rows      int                `json:"rows"`
	TotalRows int                `json:"total_rows"`
	Columns   int                `json:"columns"`
	Skipped   int                `json:"skipped"`
	Earliest  *time.Time         `json:"earliest,omitempty"`
	Latest    *time.Time         `json:"latest,omitempty"`
	Range     *dataset.DateRange `json:"range,omitempty"`
	// Metadata is the cache metadata backing the result, untouched on fallback
	Metadata *cache.Metadata `json:"metadata,omitempty"`
	TLSMode  string          `json:"tls_mode,omitempty"`
	// Degraded is set when data was served despite a failure, e.g. a fallback to a stale cache
	Degraded       bool          `json:"degraded"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	TopFactors     []FactorCount `json:"top_contributing_factors,omitempty"`
	// Missing counts empty values per casualty column present in the dataset
	Missing  map[string]int   `json:"missing,omitempty"`
	Preview  []dataset.Record `json:"preview,omitempty"`
	Duration JSONDuration     `json:"duration"`
}

func newSummary(ds *dataset.Dataset, out *outcome, dr *dataset.DateRange, topN int) *Summary {
	s := &Summary{
		Source:         out.source,
		Parser:         out.parser,
		Rows:           ds.Len(),
		TotalRows:      out.result.Dataset.Len(),
		Columns:        len(ds.Columns),
		Skipped:        out.result.Skipped,
		Range:          dr,
		Metadata:       out.meta,
		TLSMode:        out.tlsMode,
		Degraded:       out.degraded,
		FallbackReason: out.fallbackReason,
		TopFactors:     topFactors(ds, topN),
		Missing:        missingCounts(ds),
	}

	if earliest, latest, ok := ds.Span(); ok {
		s.Earliest = &earliest
		s.Latest = &latest
	}

	return s
}

// topFactors counts non-empty contributing factors, highest first, ties by name
func topFactors(ds *dataset.Dataset, n int) []FactorCount {
	if ds == nil || n <= 0 {
		return nil
	}

	counts := make(map[string]int)

	for _, r := range ds.Records {
		factor := strings.TrimSpace(r.Get(columnContributingFactor))
		if factor == "" {
			continue
		}

		counts[factor]++
	}

	out := make([]FactorCount, 0, len(counts))
	for factor, count := range counts {
		out = append(out, FactorCount{Factor: factor, Count: count})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Factor < out[j].Factor
	})

	if len(out) > n {
		out = out[:n]
	}

	return out
}

func missingCounts(ds *dataset.Dataset) map[string]int {
	if ds == nil {
		return nil
	}

	var out map[string]int

	for _, col := range missingColumns {
		if !slices.Contains(ds.Columns, col) {
			continue
		}

		if out == nil {
			out = make(map[string]int, len(missingColumns))
		}

		out[col] = 0

		for _, r := range ds.Records {
			if strings.TrimSpace(r.Get(col)) == "" {
				out[col]++
			}
		}
	}

	return out
}
