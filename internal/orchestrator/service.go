package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/aristath/riskcore/internal/modules/correlation"
	"github.com/aristath/riskcore/internal/modules/exposure"
	"github.com/aristath/riskcore/internal/modules/marketdata"
	"github.com/aristath/riskcore/internal/modules/portfolio"
	"github.com/aristath/riskcore/internal/modules/quality"
	"github.com/aristath/riskcore/internal/modules/stress"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AbortCoverage is the quality score below which a portfolio's pipeline is
// aborted outright. Between it and the configured minimum coverage the
// pipeline proceeds degraded.
const AbortCoverage = 0.5

// PortfolioLister supplies the active portfolios.
type PortfolioLister interface {
	GetAllActive() ([]domain.Portfolio, error)
}

// PositionLister supplies positions and the symbol universe.
type PositionLister interface {
	GetActiveByPortfolio(portfolioID int64) ([]domain.Position, error)
	GetActiveSymbols() ([]string, error)
}

// FactorLister supplies the active factor catalog.
type FactorLister interface {
	GetAllActive() ([]domain.Factor, error)
}

// PriceRefresher refreshes the local price store.
type PriceRefresher interface {
	RefreshSymbols(ctx context.Context, symbols []string, asOf time.Time) marketdata.SyncResult
}

// CorrelationComputer builds and persists the factor correlation matrix.
type CorrelationComputer interface {
	Compute(ctx context.Context, lookbackDays int, decayFactor float64, asOf time.Time) (*correlation.Matrix, error)
}

// QualityValidator scores data quality for a symbol set.
type QualityValidator interface {
	Validate(symbols []string, asOf time.Time) quality.Report
}

// Snapshotter computes and persists a portfolio's exposure snapshot.
type Snapshotter interface {
	SnapshotPortfolio(portfolioID int64, date string) (portfolio.ExposureSummary, error)
}

// GreeksRefresher refreshes stored option deltas.
type GreeksRefresher interface {
	RefreshPortfolio(ctx context.Context, positions []domain.Position, date string) error
}

// ExposureCalculator runs the factor exposure engine.
type ExposureCalculator interface {
	Calculate(ctx context.Context, portfolioID int64, asOf time.Time, deltaAdjust bool) (*exposure.Result, error)
}

// StressRunner runs the stress scenario engine.
type StressRunner interface {
	RunAll(ctx context.Context, portfolioID int64, asOf time.Time) (*stress.RunSummary, []stress.ScenarioResult, error)
}

// ReportHook is called after a portfolio's pipeline succeeds, with the
// stress run summary. Nil disables the report stage.
type ReportHook func(ctx context.Context, portfolioID int64, date string, summary *stress.RunSummary) error

// Config tunes the batch run.
type Config struct {
	Workers         int     // concurrent portfolio pipelines
	MinimumCoverage float64 // quality score for an unqualified pass
	DeltaAdjust     bool    // apply stored option deltas in the exposure engine
	LookbackDays    int     // correlation lookback, 0 for the default
	DecayFactor     float64 // correlation decay, 0 for the default
}

// Service is the batch orchestrator.
type Service struct {
	portfolios  PortfolioLister
	positions   PositionLister
	factors     FactorLister
	prices      PriceRefresher
	correlation CorrelationComputer
	quality     QualityValidator
	snapshots   Snapshotter
	greeks      GreeksRefresher
	exposures   ExposureCalculator
	stress      StressRunner
	report      ReportHook
	repo        *Repository
	cfg         Config
	log         zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewService creates a new batch orchestrator
func NewService(
	portfolios PortfolioLister,
	positions PositionLister,
	factors FactorLister,
	prices PriceRefresher,
	corr CorrelationComputer,
	validator QualityValidator,
	snapshots Snapshotter,
	greeks GreeksRefresher,
	exposures ExposureCalculator,
	stressRunner StressRunner,
	report ReportHook,
	repo *Repository,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MinimumCoverage <= 0 {
		cfg.MinimumCoverage = quality.DefaultMinimumCoverage
	}
	return &Service{
		portfolios:  portfolios,
		positions:   positions,
		factors:     factors,
		prices:      prices,
		correlation: corr,
		quality:     validator,
		snapshots:   snapshots,
		greeks:      greeks,
		exposures:   exposures,
		stress:      stressRunner,
		report:      report,
		repo:        repo,
		cfg:         cfg,
		log:         log.With().Str("service", "orchestrator").Logger(),
	}
}

// RunBatch executes the full nightly pipeline for asOf: global market
// refresh and correlation matrix first, then every active portfolio
// concurrently with bounded workers. Each portfolio's stages run strictly
// in order; a failing portfolio is recorded and never aborts its siblings.
// Cancellation is honored at stage boundaries only, so committed stages
// stay committed.
func (s *Service) RunBatch(ctx context.Context, asOf time.Time) (*BatchResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("a batch run is already in progress")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runID := uuid.NewString()
	date := asOf.Format("2006-01-02")
	result := &BatchResult{RunID: runID, Date: date}

	if err := s.repo.CreateRun(runID, time.Now()); err != nil {
		return nil, err
	}
	s.log.Info().Str("run_id", runID).Str("date", date).Msg("Batch run started")

	portfolios, err := s.portfolios.GetAllActive()
	if err != nil {
		s.finishRun(result, 0, 0, RunFailed)
		return nil, fmt.Errorf("failed to load portfolios: %w", err)
	}

	s.runGlobalStages(ctx, runID, asOf, result)

	if err := ctx.Err(); err != nil {
		s.finishRun(result, len(portfolios), len(portfolios), RunFailed)
		return result, err
	}

	outcomes := s.runPortfolios(ctx, runID, portfolios, asOf, date)
	result.Portfolios = outcomes

	failed := 0
	for _, out := range outcomes {
		if out.Failed {
			failed++
		}
		for _, job := range out.Jobs {
			result.JobsTotal++
			if job.Status == JobFailed {
				result.JobsFailed++
			}
		}
	}

	status := RunCompleted
	if len(portfolios) > 0 && failed == len(portfolios) {
		status = RunFailed
	}
	if err := ctx.Err(); err != nil {
		status = RunFailed
	}
	s.finishRun(result, len(portfolios), failed, status)

	s.log.Info().
		Str("run_id", runID).
		Str("status", status).
		Int("portfolios", len(portfolios)).
		Int("portfolios_failed", failed).
		Int("jobs_failed", result.JobsFailed).
		Msg("Batch run finished")
	return result, nil
}

// runGlobalStages refreshes prices for the full symbol universe (factor
// proxies plus position symbols) and rebuilds the correlation matrix. Both
// failures are recorded and tolerated: stale prices and a stale matrix
// degrade results, they do not block them.
func (s *Service) runGlobalStages(ctx context.Context, runID string, asOf time.Time, result *BatchResult) {
	s.runJob(runID, GlobalPortfolioID, JobMarketRefresh, result, func() (string, error) {
		symbols, err := s.symbolUniverse()
		if err != nil {
			return JobFailed, err
		}
		sync := s.prices.RefreshSymbols(ctx, symbols, asOf)
		if sync.Synced == 0 && sync.Failed > 0 {
			return JobFailed, fmt.Errorf("all %d symbols failed to refresh", sync.Failed)
		}
		if sync.Failed > 0 {
			return JobDegraded, fmt.Errorf("%d of %d symbols failed to refresh",
				sync.Failed, sync.Synced+sync.Failed)
		}
		return JobCompleted, nil
	})

	if ctx.Err() != nil {
		return
	}

	s.runJob(runID, GlobalPortfolioID, JobCorrelation, result, func() (string, error) {
		_, err := s.correlation.Compute(ctx, s.cfg.LookbackDays, s.cfg.DecayFactor, asOf)
		if err != nil {
			return JobFailed, err
		}
		return JobCompleted, nil
	})
}

// symbolUniverse returns the deduplicated union of factor proxy symbols and
// active position symbols, sorted for deterministic refresh order.
func (s *Service) symbolUniverse() ([]string, error) {
	factors, err := s.factors.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load factor catalog: %w", err)
	}
	positionSymbols, err := s.positions.GetActiveSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to load position symbols: %w", err)
	}

	seen := make(map[string]bool, len(factors)+len(positionSymbols))
	var symbols []string
	for _, f := range factors {
		if !seen[f.ProxySymbol] {
			seen[f.ProxySymbol] = true
			symbols = append(symbols, f.ProxySymbol)
		}
	}
	for _, sym := range positionSymbols {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// runPortfolios fans the per-portfolio pipelines out over a bounded worker
// pool, preserving input order in the returned outcomes.
func (s *Service) runPortfolios(ctx context.Context, runID string, portfolios []domain.Portfolio, asOf time.Time, date string) []PortfolioOutcome {
	outcomes := make([]PortfolioOutcome, len(portfolios))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.cfg.Workers
	if workers > len(portfolios) {
		workers = len(portfolios)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.runPortfolio(ctx, runID, portfolios[i].ID, asOf, date)
			}
		}()
	}

	for i := range portfolios {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// runPortfolio executes one portfolio's stages strictly in order. The
// quality gate can abort the pipeline; snapshot and exposure failures skip
// the stages that depend on them; greeks failures only degrade.
func (s *Service) runPortfolio(ctx context.Context, runID string, portfolioID int64, asOf time.Time, date string) PortfolioOutcome {
	out := PortfolioOutcome{PortfolioID: portfolioID}
	log := s.log.With().Int64("portfolio_id", portfolioID).Str("run_id", runID).Logger()

	record := func(name, status, errText string) {
		out.Jobs = append(out.Jobs, JobRecord{
			RunID: runID, PortfolioID: portfolioID, JobName: name,
			Status: status, Error: errText,
		})
		if err := s.repo.FinishJob(runID, portfolioID, name, status, errText); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Failed to record job outcome")
		}
	}
	skip := func(names ...string) {
		for _, name := range names {
			record(name, JobSkipped, "")
		}
		out.Failed = true
	}
	canceled := func() bool {
		return ctx.Err() != nil
	}

	run := func(name string, fn func() (string, error)) (string, bool) {
		if err := s.repo.MarkJobRunning(runID, portfolioID, name); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Failed to record job start")
		}
		status, err := fn()
		errText := ""
		if err != nil {
			errText = err.Error()
			log.Warn().Err(err).Str("job", name).Str("status", status).Msg("Pipeline stage did not complete cleanly")
		}
		record(name, status, errText)
		return status, status != JobFailed
	}

	positions, err := s.positions.GetActiveByPortfolio(portfolioID)
	if err != nil {
		record(JobQuality, JobFailed, err.Error())
		skip(JobSnapshot, JobGreeks, JobExposure, JobStress, JobReport)
		return out
	}

	// Quality gate over this portfolio's own symbols
	status, _ := run(JobQuality, func() (string, error) {
		symbols := make([]string, 0, len(positions))
		seen := make(map[string]bool, len(positions))
		for _, p := range positions {
			if !seen[p.Symbol] {
				seen[p.Symbol] = true
				symbols = append(symbols, p.Symbol)
			}
		}
		report := s.quality.Validate(symbols, asOf)
		switch {
		case report.QualityScore >= s.cfg.MinimumCoverage:
			return JobCompleted, nil
		case report.QualityScore >= AbortCoverage:
			return JobDegraded, fmt.Errorf("quality score %.2f below minimum coverage %.2f",
				report.QualityScore, s.cfg.MinimumCoverage)
		default:
			return JobFailed, fmt.Errorf("quality score %.2f below abort threshold %.2f",
				report.QualityScore, AbortCoverage)
		}
	})
	if status == JobFailed || canceled() {
		skip(JobSnapshot, JobGreeks, JobExposure, JobStress, JobReport)
		return out
	}

	_, ok := run(JobSnapshot, func() (string, error) {
		if _, err := s.snapshots.SnapshotPortfolio(portfolioID, date); err != nil {
			return JobFailed, err
		}
		return JobCompleted, nil
	})
	if !ok || canceled() {
		skip(JobGreeks, JobExposure, JobStress, JobReport)
		return out
	}

	run(JobGreeks, func() (string, error) {
		if err := s.greeks.RefreshPortfolio(ctx, positions, date); err != nil {
			// The exposure engine falls back to unadjusted exposure
			return JobDegraded, err
		}
		return JobCompleted, nil
	})
	if canceled() {
		skip(JobExposure, JobStress, JobReport)
		return out
	}

	_, ok = run(JobExposure, func() (string, error) {
		if _, err := s.exposures.Calculate(ctx, portfolioID, asOf, s.cfg.DeltaAdjust); err != nil {
			return JobFailed, err
		}
		return JobCompleted, nil
	})
	if !ok || canceled() {
		skip(JobStress, JobReport)
		return out
	}

	var summary *stress.RunSummary
	_, ok = run(JobStress, func() (string, error) {
		var err error
		summary, _, err = s.stress.RunAll(ctx, portfolioID, asOf)
		if err != nil {
			return JobFailed, err
		}
		return JobCompleted, nil
	})
	if !ok || canceled() {
		skip(JobReport)
		return out
	}

	if s.report == nil {
		record(JobReport, JobSkipped, "")
		return out
	}
	run(JobReport, func() (string, error) {
		if err := s.report(ctx, portfolioID, date, summary); err != nil {
			// Reports are best-effort; the run's numbers are already persisted
			return JobDegraded, err
		}
		return JobCompleted, nil
	})
	return out
}

// runJob executes and records one global job.
func (s *Service) runJob(runID string, portfolioID int64, name string, result *BatchResult, fn func() (string, error)) {
	if err := s.repo.MarkJobRunning(runID, portfolioID, name); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Failed to record job start")
	}
	status, err := fn()
	errText := ""
	if err != nil {
		errText = err.Error()
		s.log.Warn().Err(err).Str("job", name).Str("status", status).Msg("Global stage did not complete cleanly")
	}
	result.JobsTotal++
	if status == JobFailed {
		result.JobsFailed++
	}
	if err := s.repo.FinishJob(runID, portfolioID, name, status, errText); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Failed to record job outcome")
	}
}

// finishRun persists the run's terminal state, logging rather than
// propagating history write failures.
func (s *Service) finishRun(result *BatchResult, total, failed int, status string) {
	err := s.repo.FinishRun(result.RunID, status, total, failed, result.JobsTotal, result.JobsFailed)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to record run outcome")
	}
}
