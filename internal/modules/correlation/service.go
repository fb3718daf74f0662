package correlation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/aristath/riskcore/internal/modules/marketdata"
	"github.com/aristath/riskcore/pkg/formulas"
	"github.com/rs/zerolog"
)

// Defaults for the decay-weighted estimator.
const (
	DefaultLookbackDays = 252
	DefaultDecayFactor  = 0.94
	// MinPairObservations is the floor of clean overlapping observations a
	// pair needs; below it the pair's correlation is 0, not a failure.
	MinPairObservations = 30
)

// FactorProvider supplies the active factor catalog.
type FactorProvider interface {
	GetAllActive() ([]domain.Factor, error)
}

// SeriesLoader loads a symbol's daily return series.
type SeriesLoader interface {
	LoadReturnSeries(symbol string, asOf time.Time) (marketdata.ReturnSeries, error)
}

// Service is the factor correlation engine.
type Service struct {
	factors FactorProvider
	series  SeriesLoader
	repo    *Repository
	log     zerolog.Logger
}

// NewService creates a new correlation service
func NewService(factors FactorProvider, series SeriesLoader, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		factors: factors,
		series:  series,
		repo:    repo,
		log:     log.With().Str("service", "correlation").Logger(),
	}
}

// Compute builds the decay-weighted factor correlation matrix for asOf and
// persists it (pairwise rows plus a cache blob). Pairs with fewer than
// MinPairObservations clean overlapping observations stay at 0.
func (s *Service) Compute(ctx context.Context, lookbackDays int, decayFactor float64, asOf time.Time) (*Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if decayFactor <= 0 || decayFactor >= 1 {
		decayFactor = DefaultDecayFactor
	}
	date := asOf.Format("2006-01-02")

	factors, err := s.factors.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load factor catalog: %w", err)
	}
	if len(factors) == 0 {
		return nil, fmt.Errorf("no active factors: %w", domain.ErrDataUnavailable)
	}

	// Load each factor's return series once, truncated to the lookback
	seriesByFactor := make(map[int64]marketdata.ReturnSeries, len(factors))
	factorIDs := make([]int64, 0, len(factors))
	for _, f := range factors {
		factorIDs = append(factorIDs, f.ID)
		rs, err := s.series.LoadReturnSeries(f.ProxySymbol, asOf)
		if err != nil {
			s.log.Warn().Err(err).Str("factor", f.Name).Msg("Failed to load factor series, pair correlations default to 0")
			continue
		}
		seriesByFactor[f.ID] = rs.Tail(lookbackDays)
	}

	matrix := NewMatrix(factorIDs)
	var pairRows []PairRow

	for i := 0; i < len(factors); i++ {
		for j := i + 1; j < len(factors); j++ {
			a, b := factors[i], factors[j]
			corr, sampleSize := s.pairCorrelation(seriesByFactor[a.ID], seriesByFactor[b.ID], decayFactor)

			if err := matrix.Set(a.ID, b.ID, corr); err != nil {
				return nil, err
			}
			pairRows = append(pairRows, PairRow{
				FactorA:      a.ID,
				FactorB:      b.ID,
				Date:         date,
				Correlation:  matrix.Get(a.ID, b.ID),
				LookbackDays: lookbackDays,
				DecayFactor:  decayFactor,
				SampleSize:   sampleSize,
			})
		}
	}

	if err := s.repo.SaveMatrix(matrix, pairRows, date); err != nil {
		return nil, fmt.Errorf("failed to persist correlation matrix: %w", err)
	}

	stats := matrix.Summary()
	s.log.Info().
		Str("date", date).
		Int("factors", len(factorIDs)).
		Float64("mean", stats.Mean).
		Float64("min", stats.Min).
		Float64("max", stats.Max).
		Float64("std", stats.Std).
		Msg("Factor correlation matrix computed")
	return matrix, nil
}

// pairCorrelation computes the decay-weighted correlation over the clean
// overlapping observations of two series. Weights are normalized with the
// most recent day heaviest.
func (s *Service) pairCorrelation(a, b marketdata.ReturnSeries, decayFactor float64) (float64, int) {
	x, y, _ := marketdata.Align(a, b)

	// Drop non-finite observations; a pair is only as good as its clean overlap
	cleanX := make([]float64, 0, len(x))
	cleanY := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) || math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		cleanX = append(cleanX, x[i])
		cleanY = append(cleanY, y[i])
	}

	n := len(cleanX)
	if n < MinPairObservations {
		return 0, n
	}

	weights := formulas.DecayWeights(n, decayFactor)
	return formulas.WeightedCorrelation(cleanX, cleanY, weights), n
}
