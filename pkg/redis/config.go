// Package redis provides Redis client configuration
package redis

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Define static errors
var (
	ErrInvalidTTL = errors.New("redis summaryTTL must be positive")
)

// Config holds Redis client configuration. An empty address disables Redis.
type Config struct {
	Address    string        `yaml:"address"`
	Prefix     string        `yaml:"prefix" default:"crashpull"`
	SummaryTTL time.Duration `yaml:"summaryTTL" default:"10m"`
}

// Enabled reports whether a Redis address is configured
func (c *Config) Enabled() bool {
	return c.Address != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Prefix == "" {
		c.Prefix = "crashpull"
	}

	if c.Enabled() && c.SummaryTTL <= 0 {
		return ErrInvalidTTL
	}

	return nil
}

// NewClient parses the address as a redis:// URL and creates a client
func NewClient(c *Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis address: %w", err)
	}

	return redis.NewClient(opts), nil
}
