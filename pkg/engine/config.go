// Package engine composes the crashpull components into one service used by every command
package engine

import (
	"fmt"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/api"
	"github.com/ethpandaops/crashpull/pkg/cache"
	"github.com/ethpandaops/crashpull/pkg/fetcher"
	"github.com/ethpandaops/crashpull/pkg/probe"
	"github.com/ethpandaops/crashpull/pkg/redis"
	"github.com/ethpandaops/crashpull/pkg/scheduler"
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Acquisition pipeline
	Probe   probe.Config   `yaml:"probe"`
	Remote  fetcher.Config `yaml:"remote"`
	Cache   cache.Config   `yaml:"cache"`
	Acquire acquire.Config `yaml:"acquire"`

	// Serve mode
	API       api.Config       `yaml:"api"`
	Redis     redis.Config     `yaml:"redis"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	c.Remote.SetDefaults()

	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	c.Acquire.URL = c.Remote.URL

	if err := c.Acquire.Validate(); err != nil {
		return fmt.Errorf("acquire: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	return nil
}
