package stress

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/aristath/riskcore/internal/modules/correlation"
	"github.com/aristath/riskcore/internal/modules/exposure"
	"github.com/aristath/riskcore/internal/modules/portfolio"
	"github.com/aristath/riskcore/pkg/formulas"
	"github.com/rs/zerolog"
)

// ExposureProvider supplies the persisted portfolio-level factor exposures.
type ExposureProvider interface {
	GetPortfolioExposures(portfolioID int64, date string) (map[int64]exposure.PortfolioFactorExposure, error)
}

// MatrixLoader supplies the most recent factor correlation matrix.
type MatrixLoader interface {
	LoadLatestMatrix(date string) (*correlation.Matrix, error)
}

// SnapshotProvider supplies the daily portfolio exposure snapshot.
type SnapshotProvider interface {
	GetSnapshot(portfolioID int64, date string) (*portfolio.Snapshot, error)
}

// FactorProvider supplies the active factor catalog.
type FactorProvider interface {
	GetAllActive() ([]domain.Factor, error)
}

// Service is the stress scenario engine.
type Service struct {
	exposures ExposureProvider
	matrices  MatrixLoader
	snapshots SnapshotProvider
	factors   FactorProvider
	repo      *Repository
	log       zerolog.Logger
}

// NewService creates a new stress service
func NewService(exposures ExposureProvider, matrices MatrixLoader,
	snapshots SnapshotProvider, factors FactorProvider,
	repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		exposures: exposures,
		matrices:  matrices,
		snapshots: snapshots,
		factors:   factors,
		repo:      repo,
		log:       log.With().Str("service", "stress").Logger(),
	}
}

// RunAll evaluates every active scenario against one portfolio for asOf,
// persists the full result set, and returns the run summary. Scenario
// P&L uses the portfolio's gross exposure as the capital base.
func (s *Service) RunAll(ctx context.Context, portfolioID int64, asOf time.Time) (*RunSummary, []ScenarioResult, error) {
	return s.run(ctx, portfolioID, asOf, "")
}

// RunCategory evaluates only the active scenarios in one category. Filtered
// runs are ad-hoc queries: their results are returned but not persisted, so
// the stored (portfolio, date) result set always reflects a full run.
func (s *Service) RunCategory(ctx context.Context, portfolioID int64, asOf time.Time, category string) (*RunSummary, []ScenarioResult, error) {
	return s.run(ctx, portfolioID, asOf, category)
}

func (s *Service) run(ctx context.Context, portfolioID int64, asOf time.Time, category string) (*RunSummary, []ScenarioResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	date := asOf.Format("2006-01-02")

	scenarios, err := s.repo.GetActiveScenarios()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	if category != "" {
		filtered := scenarios[:0]
		for _, sc := range scenarios {
			if sc.Category == category {
				filtered = append(filtered, sc)
			}
		}
		scenarios = filtered
	}
	if len(scenarios) == 0 {
		return nil, nil, fmt.Errorf("no active stress scenarios: %w", domain.ErrDataUnavailable)
	}

	exposures, err := s.exposures.GetPortfolioExposures(portfolioID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load portfolio exposures: %w", err)
	}
	if len(exposures) == 0 {
		return nil, nil, fmt.Errorf("no factor exposures for portfolio %d on %s: %w",
			portfolioID, date, domain.ErrDataUnavailable)
	}

	snap, err := s.snapshots.GetSnapshot(portfolioID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load portfolio snapshot: %w", err)
	}
	if snap == nil || snap.Summary.GrossExposure <= 0 {
		return nil, nil, fmt.Errorf("no usable snapshot for portfolio %d on %s: %w",
			portfolioID, date, domain.ErrDataUnavailable)
	}
	portfolioValue := snap.Summary.GrossExposure

	matrix, err := s.matrices.LoadLatestMatrix(date)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load correlation matrix: %w", err)
	}
	if matrix == nil {
		// Identity fallback: correlated P&L collapses to direct P&L.
		s.log.Warn().Int64("portfolio_id", portfolioID).Str("date", date).
			Msg("No correlation matrix available, falling back to identity")
		ids := make([]int64, 0, len(exposures))
		for id := range exposures {
			ids = append(ids, id)
		}
		matrix = correlation.NewMatrix(ids)
	}

	factors, err := s.factors.GetAllActive()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load factor catalog: %w", err)
	}
	nameToID := make(map[string]int64, len(factors))
	idToName := make(map[int64]string, len(factors))
	for _, f := range factors {
		nameToID[f.Name] = f.ID
		idToName[f.ID] = f.Name
	}

	results := make([]ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		res := s.runScenario(sc, portfolioID, date, portfolioValue, exposures, matrix, nameToID, idToName)
		results = append(results, res)
	}

	if category == "" {
		if err := s.repo.SaveResults(portfolioID, date, results); err != nil {
			return nil, nil, fmt.Errorf("failed to persist stress results: %w", err)
		}
	}

	summary := s.summarize(portfolioID, date, results)
	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("date", date).
		Int("scenarios", summary.Scenarios).
		Str("worst_scenario", summary.WorstScenarioID).
		Float64("worst_pnl", summary.WorstPnL).
		Int("loss_caps", summary.LossCapsApplied).
		Msg("Stress test run completed")
	return summary, results, nil
}

// runScenario projects one scenario. Direct P&L sums portfolio_value x
// beta x shock over shocked factors the portfolio is exposed to; the
// correlated pass propagates every catalogued shock, exposed or not,
// through the matrix to all exposed factors. A shocked factor receives
// its own shock at correlation 1.
func (s *Service) runScenario(sc Scenario, portfolioID int64, date string,
	portfolioValue float64, exposures map[int64]exposure.PortfolioFactorExposure,
	matrix *correlation.Matrix, nameToID map[string]int64, idToName map[int64]string) ScenarioResult {

	res := ScenarioResult{
		PortfolioID:  portfolioID,
		ScenarioID:   sc.ID,
		Date:         date,
		LossCapScale: 1,
	}

	shockByID := make(map[int64]float64, len(sc.Shocks))
	for name, shock := range sc.Shocks {
		id, known := nameToID[name]
		if !known {
			s.log.Warn().Str("scenario", sc.ID).Str("factor", name).
				Msg("Scenario shocks a factor missing from the catalog, contribution is 0")
			res.MissingFactors = append(res.MissingFactors, name)
			continue
		}
		if _, exposed := exposures[id]; !exposed {
			// No direct leg without exposure, but the shock still propagates
			// through the correlation matrix to the exposed factors.
			s.log.Warn().Str("scenario", sc.ID).Str("factor", name).
				Int64("portfolio_id", portfolioID).
				Msg("Scenario shocks a factor the portfolio has no direct exposure to")
			res.MissingFactors = append(res.MissingFactors, name)
		}
		shockByID[id] = shock
	}
	sort.Strings(res.MissingFactors)

	factorIDs := make([]int64, 0, len(exposures))
	for id := range exposures {
		factorIDs = append(factorIDs, id)
	}
	sort.Slice(factorIDs, func(i, j int) bool { return factorIDs[i] < factorIDs[j] })

	for _, id := range factorIDs {
		exp := exposures[id]

		directShock := shockByID[id]
		directPnL := portfolioValue * exp.Beta * directShock

		effectiveShock := 0.0
		for shockedID, shock := range shockByID {
			effectiveShock += shock * matrix.Get(shockedID, id)
		}
		correlatedPnL := portfolioValue * exp.Beta * effectiveShock

		res.Breakdown = append(res.Breakdown, FactorContribution{
			FactorID:       id,
			FactorName:     idToName[id],
			Beta:           exp.Beta,
			DirectShock:    directShock,
			EffectiveShock: effectiveShock,
			DirectPnL:      directPnL,
			CorrelatedPnL:  correlatedPnL,
		})
		res.DirectPnL += directPnL
		res.CorrelatedPnL += correlatedPnL
	}

	s.applyLossCap(&res, portfolioValue)
	res.CorrelationEffect = res.CorrelatedPnL - res.DirectPnL
	return res
}

// applyLossCap bounds projected losses to LossCapFraction of portfolio
// value by scaling every per-factor contribution uniformly. Gains are
// never capped.
func (s *Service) applyLossCap(res *ScenarioResult, portfolioValue float64) {
	maxLoss := LossCapFraction * portfolioValue

	if -res.CorrelatedPnL > maxLoss {
		scale := maxLoss / -res.CorrelatedPnL
		for i := range res.Breakdown {
			res.Breakdown[i].CorrelatedPnL *= scale
		}
		res.CorrelatedPnL = -maxLoss
		res.LossCapApplied = true
		res.LossCapScale = scale
		s.log.Warn().
			Str("scenario", res.ScenarioID).
			Int64("portfolio_id", res.PortfolioID).
			Float64("scale", scale).
			Msg("Projected loss exceeded the cap, contributions scaled down")
	}

	if -res.DirectPnL > maxLoss {
		scale := maxLoss / -res.DirectPnL
		for i := range res.Breakdown {
			res.Breakdown[i].DirectPnL *= scale
		}
		res.DirectPnL = -maxLoss
		if !res.LossCapApplied {
			res.LossCapApplied = true
			res.LossCapScale = scale
		}
	}
}

// summarize condenses one run's results into distribution statistics over
// the correlated P&L.
func (s *Service) summarize(portfolioID int64, date string, results []ScenarioResult) *RunSummary {
	summary := &RunSummary{
		PortfolioID: portfolioID,
		Date:        date,
		Scenarios:   len(results),
	}
	if len(results) == 0 {
		return summary
	}

	pnls := make([]float64, len(results))
	effects := make([]float64, len(results))
	summary.WorstPnL = results[0].CorrelatedPnL
	summary.WorstScenarioID = results[0].ScenarioID
	summary.BestPnL = results[0].CorrelatedPnL
	summary.BestScenarioID = results[0].ScenarioID

	for i, res := range results {
		pnls[i] = res.CorrelatedPnL
		effects[i] = res.CorrelationEffect
		if res.CorrelatedPnL < summary.WorstPnL {
			summary.WorstPnL = res.CorrelatedPnL
			summary.WorstScenarioID = res.ScenarioID
		}
		if res.CorrelatedPnL > summary.BestPnL {
			summary.BestPnL = res.CorrelatedPnL
			summary.BestScenarioID = res.ScenarioID
		}
		if res.CorrelatedPnL > 0 {
			summary.Wins++
		} else if res.CorrelatedPnL < 0 {
			summary.Losses++
		}
		if res.LossCapApplied {
			summary.LossCapsApplied++
		}
	}

	summary.MeanPnL = formulas.Mean(pnls)
	summary.MedianPnL = formulas.Median(pnls)
	summary.StdPnL = formulas.StdDev(pnls)
	summary.MeanCorrelationEffect = formulas.Mean(effects)
	return summary
}
