package exposure

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/aristath/riskcore/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// FactorProvider supplies the active factor catalog.
type FactorProvider interface {
	GetAllActive() ([]domain.Factor, error)
}

// PositionProvider supplies a portfolio's active positions.
type PositionProvider interface {
	GetActiveByPortfolio(portfolioID int64) ([]domain.Position, error)
}

// DeltaProvider supplies stored option deltas for a portfolio and date.
type DeltaProvider interface {
	GetDeltas(portfolioID int64, date string) (map[int64]float64, error)
}

// SeriesLoader loads a symbol's daily return series for the rolling window.
type SeriesLoader interface {
	LoadReturnSeries(symbol string, asOf time.Time) (marketdata.ReturnSeries, error)
}

// Service is the factor exposure engine.
type Service struct {
	factors   FactorProvider
	positions PositionProvider
	deltas    DeltaProvider
	series    SeriesLoader
	repo      *Repository
	pool      *WorkerPool
	log       zerolog.Logger
}

// NewService creates a new factor exposure service
func NewService(
	factors FactorProvider,
	positions PositionProvider,
	deltas DeltaProvider,
	series SeriesLoader,
	repo *Repository,
	pool *WorkerPool,
	log zerolog.Logger,
) *Service {
	return &Service{
		factors:   factors,
		positions: positions,
		deltas:    deltas,
		series:    series,
		repo:      repo,
		pool:      pool,
		log:       log.With().Str("service", "exposure").Logger(),
	}
}

// factorSeries pairs a factor with its loaded proxy return series.
type factorSeries struct {
	factor domain.Factor
	series marketdata.ReturnSeries
}

// positionSeries pairs a position with its dollar-exposure return series
// and signed exposure.
type positionSeries struct {
	position domain.Position
	series   marketdata.ReturnSeries
	exposure float64
}

// Calculate runs the full exposure pipeline for one portfolio and date:
// factor series load, per-position exposure series, parallel OLS over all
// (position, factor) pairs, signed aggregation, and transactional persist.
//
// Returns domain.ErrDataUnavailable when no factor series could be loaded
// at all; every narrower failure degrades per unit instead of aborting.
func (s *Service) Calculate(ctx context.Context, portfolioID int64, asOf time.Time, deltaAdjust bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	date := asOf.Format("2006-01-02")

	factorSeriesList, err := s.loadFactorSeries(asOf)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.GetActiveByPortfolio(portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("portfolio %d has no active positions: %w",
			portfolioID, domain.ErrDataUnavailable)
	}

	positionSeriesList := s.loadPositionSeries(portfolioID, positions, asOf, date, deltaAdjust)

	// Parallel map over every (position, factor) pair
	var pairs [][2]int
	for pi := range positionSeriesList {
		for fi := range factorSeriesList {
			pairs = append(pairs, [2]int{pi, fi})
		}
	}

	pairResults := s.pool.Map(pairs, func(pi, fi int) PairResult {
		return s.fitPair(positionSeriesList[pi], factorSeriesList[fi])
	})

	result := &Result{
		PortfolioID: portfolioID,
		Date:        date,
		Pairs:       pairResults,
		Portfolio:   AggregatePortfolio(portfolioID, date, pairResults),
		QualityFlag: domain.QualityFull,
	}
	for _, p := range pairResults {
		if p.QualityFlag == domain.QualityLimitedHistory || p.Degraded {
			result.QualityFlag = domain.QualityLimitedHistory
			break
		}
	}

	if err := s.repo.SaveResult(*result); err != nil {
		return nil, fmt.Errorf("failed to persist exposures: %w", err)
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("date", date).
		Int("pairs", len(result.Pairs)).
		Int("factors", len(result.Portfolio)).
		Str("quality", string(result.QualityFlag)).
		Msg("Factor exposures calculated")
	return result, nil
}

// loadFactorSeries loads proxy return series for all active factors.
// Factors without data are skipped with a warning; no usable factor at all
// is ErrDataUnavailable.
func (s *Service) loadFactorSeries(asOf time.Time) ([]factorSeries, error) {
	factors, err := s.factors.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load factor catalog: %w", err)
	}

	var list []factorSeries
	for _, f := range factors {
		rs, err := s.series.LoadReturnSeries(f.ProxySymbol, asOf)
		if err != nil {
			s.log.Warn().Err(err).Str("factor", f.Name).Msg("Failed to load factor proxy series")
			continue
		}
		if rs.Len() == 0 {
			s.log.Warn().Str("factor", f.Name).Str("proxy", f.ProxySymbol).Msg("Factor proxy has no return history")
			continue
		}
		list = append(list, factorSeries{factor: f, series: rs})
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("no factor return series available: %w", domain.ErrDataUnavailable)
	}
	return list, nil
}

// loadPositionSeries builds each position's daily dollar-exposure return
// series. Delta adjustment multiplies option exposure by the stored delta;
// a missing delta falls back to unadjusted exposure with a logged
// degradation, never an error.
func (s *Service) loadPositionSeries(portfolioID int64, positions []domain.Position, asOf time.Time, date string, deltaAdjust bool) []positionSeries {
	deltas := map[int64]float64{}
	if deltaAdjust {
		var err error
		deltas, err = s.deltas.GetDeltas(portfolioID, date)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to load deltas, proceeding unadjusted")
			deltas = map[int64]float64{}
		}
	}

	var list []positionSeries
	for _, pos := range positions {
		scalar := pos.SignedQuantity() * pos.Multiplier
		if deltaAdjust && pos.Variant.IsOption() {
			if delta, ok := deltas[pos.ID]; ok {
				scalar *= delta
			} else {
				s.log.Debug().Int64("position_id", pos.ID).Msg("No delta available, using unadjusted exposure")
			}
		}

		rs, err := s.series.LoadReturnSeries(pos.Symbol, asOf)
		if err != nil {
			s.log.Warn().Err(err).Int64("position_id", pos.ID).Msg("Failed to load position series")
			rs = marketdata.ReturnSeries{}
		}

		// The dollar-exposure series is the close series scaled by a
		// constant (signed quantity × multiplier × delta). Constant
		// scaling cancels in percentage changes, so the regression input
		// is the underlying return series; the scalar survives only in
		// the exposure weight.
		list = append(list, positionSeries{
			position: pos,
			series:   rs,
			exposure: pos.CurrentPrice * scalar,
		})
	}
	return list
}

// fitPair regresses one position's returns on one factor's returns.
func (s *Service) fitPair(ps positionSeries, fs factorSeries) PairResult {
	pair := PairResult{
		PositionID:  ps.position.ID,
		FactorID:    fs.factor.ID,
		Exposure:    ps.exposure,
		QualityFlag: domain.QualityFull,
	}

	x, y, _ := marketdata.Align(fs.series, ps.series)
	if len(x) < MinRegressionDays {
		// Short overlap still produces a result, just flagged
		pair.QualityFlag = domain.QualityLimitedHistory
	}

	result, ok := Regress(x, y)
	if !ok {
		regErr := &domain.RegressionError{
			PositionID: ps.position.ID,
			FactorID:   fs.factor.ID,
			Reason:     fmt.Sprintf("unusable sample (n=%d)", len(x)),
		}
		s.log.Warn().Err(regErr).Msg("Regression degraded to zero beta")
		pair.Degraded = true
		pair.Note = regErr.Reason
		pair.QualityFlag = domain.QualityLimitedHistory
		pair.Regression = RegressionResult{N: len(x), PValue: 1}
		return pair
	}

	if result.Capped {
		s.log.Debug().
			Int64("position_id", ps.position.ID).
			Int64("factor_id", fs.factor.ID).
			Msg("Beta capped at limit")
	}
	pair.Regression = result
	return pair
}
