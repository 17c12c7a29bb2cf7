// Package scheduler runs the harvest on a cron schedule with a runtime
// on/off toggle.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is the work a schedule tick triggers.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner around a single job. Ticks while the toggle
// is off are logged and skipped; the toggle state lives in memory only.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     Job
	baseCtx context.Context
	enabled atomic.Bool
	logger  *zap.Logger
}

// New builds a Scheduler for a standard 5-field cron spec in the given
// timezone. The scheduler starts enabled but idle until Start is called.
func New(spec, timezone string, job Job, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("job is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		spec:   spec,
		job:    job,
		logger: logger.Named("scheduler"),
	}
	s.enabled.Store(true)

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins ticking. Jobs run under ctx so that a scheduled run observes
// process shutdown and can stop between candidates.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Bool("enabled", s.enabled.Load()))
}

// Stop halts the cron runner and waits for a running tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop wait: %w", ctx.Err())
	}
}

// Enable turns scheduled runs on.
func (s *Scheduler) Enable() {
	s.enabled.Store(true)
	s.logger.Info("scheduler enabled")
}

// Disable turns scheduled runs off without stopping the cron runner.
func (s *Scheduler) Disable() {
	s.enabled.Store(false)
	s.logger.Info("scheduler disabled")
}

// Enabled reports the toggle state.
func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

// Spec returns the configured cron expression.
func (s *Scheduler) Spec() string {
	return s.spec
}

func (s *Scheduler) tick() {
	if !s.enabled.Load() {
		s.logger.Info("scheduled run skipped, scheduler disabled")
		return
	}
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.job(ctx)
}
