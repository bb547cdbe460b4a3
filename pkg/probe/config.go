// Package probe decides whether a network path to the outside world is currently usable
package probe

import (
	"errors"
	"fmt"
	"time"
)

// Probe modes
const (
	// ModeTCP dials the configured address
	ModeTCP = "tcp"
	// ModeOnline always reports the network as reachable
	ModeOnline = "online"
	// ModeOffline always reports the network as unreachable
	ModeOffline = "offline"
)

var (
	// ErrAddressRequired is returned when no probe address is configured
	ErrAddressRequired = errors.New("probe address is required")
	// ErrInvalidTimeout is returned when the probe timeout is not positive
	ErrInvalidTimeout = errors.New("probe timeout must be positive")
	// ErrInvalidMode is returned for an unknown probe mode
	ErrInvalidMode = errors.New("probe mode must be tcp, online or offline")
)

// Config defines the connectivity probe
type Config struct {
	Mode string `yaml:"mode" default:"tcp" validate:"oneof=tcp online offline"`
	// Address is a host:port on a highly available host
	Address string        `yaml:"address" default:"8.8.8.8:53"`
	Timeout time.Duration `yaml:"timeout" default:"3s"`
}

// Validate checks if the probe configuration is valid
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeOnline, ModeOffline:
		return nil
	case ModeTCP, "":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	if c.Address == "" {
		return ErrAddressRequired
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}
