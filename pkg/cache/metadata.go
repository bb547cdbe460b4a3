package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Source identifies where a dataset came from
type Source string

// Known sources
const (
	SourceAPI    Source = "api"
	SourceCache  Source = "cache"
	SourceLocal  Source = "local"
	SourceSample Source = "sample"
)

var errZeroTimestamp = errors.New("cache_timestamp is missing")

// Valid reports whether s is a known source
func (s Source) Valid() bool {
	switch s {
	case SourceAPI, SourceCache, SourceLocal, SourceSample:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects unknown sources
func (s *Source) UnmarshalText(text []byte) error {
	v := Source(text)
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, string(text))
	}

	*s = v

	return nil
}

// Metadata describes the persisted dataset. It is stored next to the record file and the two
// are always replaced together.
type Metadata struct {
	CacheTimestamp     time.Time  `json:"cache_timestamp"`
	Source             Source     `json:"source"`
	LastUpdatedFromAPI *time.Time `json:"last_updated_from_api,omitempty"`
	URL                string     `json:"url"`
}

// NewAPIMetadata returns the metadata for a dataset just fetched from url
func NewAPIMetadata(url string, fetchedAt time.Time) *Metadata {
	ts := fetchedAt.UTC()

	return &Metadata{
		CacheTimestamp:     ts,
		Source:             SourceAPI,
		LastUpdatedFromAPI: &ts,
		URL:                url,
	}
}

// Validate checks the metadata invariants
func (m *Metadata) Validate() error {
	if m.CacheTimestamp.IsZero() {
		return errZeroTimestamp
	}

	if !m.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, m.Source)
	}

	return nil
}

func decodeMetadata(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return &meta, nil
}

func encodeMetadata(meta *Metadata) ([]byte, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return json.MarshalIndent(meta, "", "  ")
}
