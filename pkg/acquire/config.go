// Package acquire decides, per request, whether the collisions dataset is served from the
// local cache, refreshed from the remote source, or not available at all.
package acquire

import "errors"

var (
	// ErrURLRequired is returned when no default remote URL is configured
	ErrURLRequired = errors.New("default remote URL is required")
	// ErrInvalidPreviewRows is returned when the preview row count is negative
	ErrInvalidPreviewRows = errors.New("previewRows must not be negative")
)

// Config defines acquisition behavior
type Config struct {
	// URL is the default remote source. It is filled from the remote fetcher configuration.
	URL string `yaml:"-"`
	// PreviewRows is the number of records included in a summary preview by default
	PreviewRows int `yaml:"previewRows" default:"5"`
	// TopFactors is the number of contributing factors listed in a summary
	TopFactors int `yaml:"topFactors" default:"10"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.PreviewRows < 0 {
		return ErrInvalidPreviewRows
	}

	return nil
}
