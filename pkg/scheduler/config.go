// Package scheduler runs the background cache refresh on a cron schedule
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresh modes
const (
	// ModeStale refreshes only when the cache is missing or older than the freshness threshold
	ModeStale = "stale"
	// ModeForce refreshes on every run
	ModeForce = "force"
)

var (
	// ErrInvalidMode is returned for an unknown refresh mode
	ErrInvalidMode = errors.New("scheduler mode must be stale or force")
	// ErrInvalidTimeout is returned when the job timeout is not positive
	ErrInvalidTimeout = errors.New("scheduler jobTimeout must be positive")
)

// Config defines scheduler configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" default:"false"`
	Schedule        string        `yaml:"schedule" default:"@every 6h"`
	Mode            string        `yaml:"mode" default:"stale" validate:"oneof=stale force"`
	RunOnStart      bool          `yaml:"runOnStart" default:"true"`
	JobTimeout      time.Duration `yaml:"jobTimeout" default:"5m"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if _, err := parseSchedule(c.Schedule); err != nil {
		return err
	}

	if c.Mode != ModeStale && c.Mode != ModeForce {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	if c.JobTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// parseSchedule validates a cron expression or descriptor such as "@every 6h"
func parseSchedule(schedule string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule format: %w", err)
	}

	return sched, nil
}
