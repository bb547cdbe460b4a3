// Package fetcher retrieves the raw collisions payload from remote endpoints
package fetcher

import (
	"errors"
	"time"
)

// DefaultURL is the NYC Open Data CSV export of the motor vehicle collisions dataset
const DefaultURL = "https://data.cityofnewyork.us/api/v3/views/h9gi-nx95/query.csv"

var (
	// ErrURLRequired is returned when no remote URL is configured
	ErrURLRequired = errors.New("remote URL is required")
	// ErrInvalidTimeout is returned when the fetch timeout is not positive
	ErrInvalidTimeout = errors.New("fetch timeout must be positive")
	// ErrInvalidMaxBytes is returned when the payload limit is not positive
	ErrInvalidMaxBytes = errors.New("maxBytes must be positive")
)

// Config defines how remote payloads are fetched
type Config struct {
	URL     string        `yaml:"url" default:"https://data.cityofnewyork.us/api/v3/views/h9gi-nx95/query.csv"`
	Timeout time.Duration `yaml:"timeout" default:"30s"`
	// AllowInsecureFallback retries once without certificate verification when the strict
	// attempt fails on a certificate error
	AllowInsecureFallback bool          `yaml:"allowInsecureFallback" default:"true"`
	UserAgent             string        `yaml:"userAgent" default:"Mozilla/5.0 (compatible; crashpull/1.0)"`
	MaxBytes              int64         `yaml:"maxBytes" default:"2147483648"`
	KeepAlive             time.Duration `yaml:"keepAlive" default:"30s"`
	S3                    S3Config      `yaml:"s3"`
}

// S3Config configures access to S3 mirrors of the dataset
type S3Config struct {
	Region      string `yaml:"region" default:"us-east-1"`
	EndpointURL string `yaml:"endpointURL"` // Optional custom endpoint (MinIO and friends)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBytes <= 0 {
		return ErrInvalidMaxBytes
	}

	return nil
}

// SetDefaults sets default values for unset fields
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; crashpull/1.0)"
	}

	if c.MaxBytes == 0 {
		c.MaxBytes = 2 << 30
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}

	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}
