// Package scheduler manages the recurring background jobs: the nightly
// batch, the weekly deep correlation refresh, and database maintenance.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of recurring work. Implementations own their timeout;
// Run blocks until the job is done.
type Job interface {
	Run() error
	Name() string
}

// Scheduler drives the registered jobs on six-field cron expressions
// (seconds included), matching RISKCORE_BATCH_SCHEDULE and
// RISKCORE_WEEKLY_SCHEDULE.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins dispatching registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops dispatching and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job against a cron schedule, e.g.
// "0 30 1 * * TUE-SAT" for the nightly batch after each trading day or
// "0 0 6 * * SUN" for the Sunday correlation refresh. A failed run is
// logged and the schedule keeps going; jobs never abort each other.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runLogged(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule. Used by the
// manual batch trigger endpoint.
func (s *Scheduler) RunNow(job Job) error {
	return s.runLogged(job)
}

func (s *Scheduler) runLogged(job Job) error {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	if err := job.Run(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Job failed")
		return err
	}

	s.log.Debug().
		Str("job", job.Name()).
		Dur("elapsed", time.Since(start)).
		Msg("Job completed")
	return nil
}
