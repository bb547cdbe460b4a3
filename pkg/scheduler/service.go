package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("scheduler already started")

// Job is the refresh work run on every tick
type Job func(ctx context.Context) error

// Service defines the public interface for the scheduler
type Service interface {
	// Start registers the refresh job and starts the cron loop
	Start(ctx context.Context) error

	// Stop waits for a running job and shuts the cron loop down
	Stop() error
}

type service struct {
	log logrus.FieldLogger
	cfg *Config
	job Job

	cron    *cron.Cron
	entryID cron.EntryID

	mu      sync.Mutex
	started bool
	ctx     context.Context //nolint:containedctx // Parent context for jobs started by cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new scheduler service
func NewService(log logrus.FieldLogger, cfg *Config, job Job) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log = log.WithField("service", "scheduler")

	return &service{
		log: log,
		cfg: cfg,
		job: job,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(log))),
		),
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	id, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.run("scheduled") })
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to register refresh job: %w", err)
	}

	s.entryID = id
	s.started = true

	s.cron.Start()

	if s.cfg.RunOnStart {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.run("startup")
		}()
	}

	s.log.WithFields(logrus.Fields{
		"schedule": s.cfg.Schedule,
		"mode":     s.cfg.Mode,
		"next_run": s.cron.Entry(id).Next,
	}).Info("Scheduler service started")

	return nil
}

func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.cancel()

	stopCtx := s.cron.Stop()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		<-stopCtx.Done()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler service stopped successfully")
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("Timed out waiting for refresh job to finish")
	}

	s.started = false

	return nil
}

func (s *service) run(trigger string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.WithField("trigger", trigger)
	start := time.Now()

	if err := s.job(ctx); err != nil {
		observability.RecordScheduledRefresh("error")
		log.WithError(err).WithField("duration", time.Since(start)).Warn("Background refresh failed")

		return
	}

	observability.RecordScheduledRefresh("success")
	log.WithField("duration", time.Since(start)).Info("Background refresh finished")
}
