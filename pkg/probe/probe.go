package probe

import (
	"context"
	"net"
	"time"

	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Prober reports whether the network is reachable
type Prober interface {
	// IsOnline never fails; any error is reported as offline
	IsOnline(ctx context.Context) bool
}

// New returns the prober selected by cfg.Mode
func New(log logrus.FieldLogger, cfg *Config) (Prober, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeOnline:
		return Static(true), nil
	case ModeOffline:
		log.WithField("component", "probe").Info("Network access disabled, serving from cache only")
		return Static(false), nil
	default:
		return NewTCPProber(log, cfg)
	}
}

// TCPProber opens and immediately closes a TCP connection to a well-known address
type TCPProber struct {
	log     logrus.FieldLogger
	address string
	timeout time.Duration
	dialer  *net.Dialer
}

// NewTCPProber creates a prober from configuration
func NewTCPProber(log logrus.FieldLogger, cfg *Config) (*TCPProber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &TCPProber{
		log:     log.WithField("component", "probe"),
		address: cfg.Address,
		timeout: cfg.Timeout,
		dialer:  &net.Dialer{Timeout: cfg.Timeout},
	}, nil
}

// IsOnline implements Prober
func (p *TCPProber) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	conn, err := p.dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		p.log.WithError(err).WithField("address", p.address).Debug("Connectivity probe failed")
		observability.RecordProbe(false, time.Since(start).Seconds())

		return false
	}

	if closeErr := conn.Close(); closeErr != nil {
		p.log.WithError(closeErr).Debug("Failed to close probe connection")
	}

	observability.RecordProbe(true, time.Since(start).Seconds())

	return true
}

// Static is a prober with a fixed answer
type Static bool

// IsOnline implements Prober
func (s Static) IsOnline(context.Context) bool {
	return bool(s)
}
