package scheduler

import (
	"context"
	"time"

	"github.com/aristath/riskcore/internal/modules/correlation"
	"github.com/aristath/riskcore/internal/orchestrator"
	"github.com/rs/zerolog"
)

// The weekly refresh recomputes correlations over a two-year window with a
// slower decay, smoothing regime noise the nightly 252-day estimate picks up.
const (
	WeeklyLookbackDays = 504
	WeeklyDecayFactor  = 0.97
)

// NightlyBatchJob runs the full risk pipeline after each trading day.
type NightlyBatchJob struct {
	orchestrator *orchestrator.Service
	timeout      time.Duration
	log          zerolog.Logger
}

// NewNightlyBatchJob creates the nightly batch job
func NewNightlyBatchJob(svc *orchestrator.Service, timeout time.Duration, log zerolog.Logger) *NightlyBatchJob {
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &NightlyBatchJob{
		orchestrator: svc,
		timeout:      timeout,
		log:          log.With().Str("job", "nightly_batch").Logger(),
	}
}

// Name returns the job name
func (j *NightlyBatchJob) Name() string {
	return "nightly_batch"
}

// Run executes the batch for the previous calendar day: the job fires in
// the early morning, after the prior session's closes have settled.
func (j *NightlyBatchJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	asOf := time.Now().AddDate(0, 0, -1)
	result, err := j.orchestrator.RunBatch(ctx, asOf)
	if err != nil {
		return err
	}
	j.log.Info().
		Str("run_id", result.RunID).
		Str("date", result.Date).
		Int("jobs_failed", result.JobsFailed).
		Msg("Nightly batch finished")
	return nil
}

// WeeklyCorrelationJob recomputes the factor correlation matrix over the
// long window.
type WeeklyCorrelationJob struct {
	correlation *correlation.Service
	timeout     time.Duration
	log         zerolog.Logger
}

// NewWeeklyCorrelationJob creates the weekly correlation refresh job
func NewWeeklyCorrelationJob(svc *correlation.Service, timeout time.Duration, log zerolog.Logger) *WeeklyCorrelationJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &WeeklyCorrelationJob{
		correlation: svc,
		timeout:     timeout,
		log:         log.With().Str("job", "weekly_correlation").Logger(),
	}
}

// Name returns the job name
func (j *WeeklyCorrelationJob) Name() string {
	return "weekly_correlation"
}

// Run rebuilds the matrix with the long lookback and slow decay.
func (j *WeeklyCorrelationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	matrix, err := j.correlation.Compute(ctx, WeeklyLookbackDays, WeeklyDecayFactor, time.Now())
	if err != nil {
		return err
	}
	stats := matrix.Summary()
	j.log.Info().
		Float64("mean", stats.Mean).
		Float64("max", stats.Max).
		Msg("Weekly correlation refresh finished")
	return nil
}

// FuncJob adapts a plain function to the Job interface. Used for
// maintenance work like WAL checkpoints and backups.
type FuncJob struct {
	name string
	fn   func() error
}

// NewFuncJob creates a job from a name and a function
func NewFuncJob(name string, fn func() error) *FuncJob {
	return &FuncJob{name: name, fn: fn}
}

// Name returns the job name
func (j *FuncJob) Name() string { return j.name }

// Run executes the wrapped function
func (j *FuncJob) Run() error { return j.fn() }
