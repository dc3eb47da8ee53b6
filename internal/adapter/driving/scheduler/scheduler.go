// Package scheduler drives periodic missed-commit reconciliation sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper runs one reconciliation sweep. Implementations log their own outcome.
type Sweeper interface {
	RunSweep(ctx context.Context)
}

// Scheduler wraps a gocron scheduler running the reconciliation sweep.
type Scheduler struct {
	scheduler gocron.Scheduler
	sweeper   Sweeper
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Scheduler for sweeper. Sweeps start when Start is called.
func New(sweeper Sweeper) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, sweeper: sweeper, ctx: ctx, cancel: cancel}, nil
}

// ScheduleSweep runs the sweep every interval, starting immediately. A sweep
// still running when the next one is due makes the next one skip.
func (s *Scheduler) ScheduleSweep(interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", errors.New("sweep interval must be positive")
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("reconcile-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("schedule reconciliation sweep: %w", err)
	}

	slog.Info("reconciliation sweep scheduled", "interval", interval, "job_id", job.ID().String())
	return job.ID().String(), nil
}

func (s *Scheduler) sweep() {
	s.sweeper.RunSweep(s.ctx)
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	slog.Info("starting scheduler")
	s.scheduler.Start()
}

// Stop cancels any running sweep and waits for jobs to finish.
func (s *Scheduler) Stop() error {
	slog.Info("stopping scheduler")
	s.cancel()
	return s.scheduler.Shutdown()
}
