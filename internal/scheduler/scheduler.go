package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-etl/internal/pipeline"
)

// Runner executes one run of the weather chain.
type Runner interface {
	Run(ctx context.Context, city string) (pipeline.Result, error)
}

// Scheduler triggers a run for one city on every cron tick. Ticks that fire
// while a run is still in progress are skipped, and missed ticks are never
// back-filled.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	city      string
	cron      string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Runs are bound to ctx; Stop cancels any run in
// progress.
func New(ctx context.Context, cronExpr, city string, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	runCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		city:      city,
		cron:      cronExpr,
		ctx:       runCtx,
		cancel:    cancel,
	}
}

// Start registers the job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.city == "" {
		return errors.New("scheduler: no city configured")
	}

	job, err := s.scheduler.Cron(s.cron).WaitForSchedule().Do(s.runOnce)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", s.cron, err)
	}

	s.scheduler.StartAsync()
	log.WithFields(log.Fields{
		"city":     s.city,
		"schedule": s.cron,
		"next_run": job.NextRun().Format(time.RFC3339),
	}).Info("scheduler started")
	return nil
}

// NextRun reports when the job fires next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

func (s *Scheduler) runOnce() {
	if s.ctx.Err() != nil {
		return
	}
	res, err := s.runner.Run(s.ctx, s.city)
	if err != nil {
		log.WithError(err).WithField("run_id", res.RunID).Error("scheduled run failed")
		return
	}
	log.WithField("run_id", res.RunID).Info("scheduled run completed")
}

// Stop cancels any run in progress and stops future ticks.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
