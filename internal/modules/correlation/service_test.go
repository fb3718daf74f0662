package correlation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/aristath/riskcore/internal/modules/marketdata"

	_ "modernc.org/sqlite"
)

func setupCorrelationRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE factor_correlation (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			factor_a INTEGER NOT NULL,
			factor_b INTEGER NOT NULL,
			calculation_date TEXT NOT NULL,
			correlation REAL NOT NULL,
			lookback_days INTEGER NOT NULL,
			decay_factor REAL NOT NULL,
			sample_size INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(factor_a, factor_b, calculation_date)
		);
		CREATE TABLE correlation_matrix_cache (
			calculation_date TEXT PRIMARY KEY,
			matrix BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db, log)
}

type fakeFactorProvider struct {
	factors []domain.Factor
}

func (f *fakeFactorProvider) GetAllActive() ([]domain.Factor, error) {
	return f.factors, nil
}

type fakeSeriesLoader struct {
	series map[string]marketdata.ReturnSeries
}

func (f *fakeSeriesLoader) LoadReturnSeries(symbol string, asOf time.Time) (marketdata.ReturnSeries, error) {
	return f.series[symbol], nil
}

// syntheticCloses builds a deterministic alternating price path. With
// invert, every move flips sign, producing perfectly anti-correlated
// returns.
func syntheticCloses(days int, invert bool) []marketdata.DailyClose {
	closes := make([]marketdata.DailyClose, days)
	price := 100.0
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		up := i%2 == 0
		if invert {
			up = !up
		}
		if up {
			price *= 1.01
		} else {
			price *= 0.99
		}
		closes[i] = marketdata.DailyClose{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Close: price,
		}
	}
	return closes
}

func TestServiceCompute(t *testing.T) {
	repo := setupCorrelationRepo(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	factors := &fakeFactorProvider{factors: []domain.Factor{
		{ID: 1, Name: "market", ProxySymbol: "SPY", Active: true},
		{ID: 2, Name: "rates", ProxySymbol: "TLT", Active: true},
		{ID: 3, Name: "gold", ProxySymbol: "GLD", Active: true},
	}}

	// SPY and TLT move in exact opposition; GLD has too little history to
	// clear the observation floor.
	loader := &fakeSeriesLoader{series: map[string]marketdata.ReturnSeries{
		"SPY": marketdata.BuildReturnSeries(syntheticCloses(120, false)),
		"TLT": marketdata.BuildReturnSeries(syntheticCloses(120, true)),
		"GLD": marketdata.BuildReturnSeries(syntheticCloses(10, false)),
	}}

	svc := NewService(factors, loader, repo, log)
	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	matrix, err := svc.Compute(context.Background(), DefaultLookbackDays, DefaultDecayFactor, asOf)
	require.NoError(t, err)

	// Perfect anti-correlation gets clamped to the bound
	assert.Equal(t, -CorrelationBound, matrix.Get(1, 2))

	// Thin overlap stays at 0 rather than failing the run
	assert.Equal(t, 0.0, matrix.Get(1, 3))
	assert.Equal(t, 0.0, matrix.Get(2, 3))

	t.Run("pairwise rows persisted", func(t *testing.T) {
		pair, err := repo.GetPair(2, 1, "2026-08-28") // argument order must not matter
		require.NoError(t, err)
		require.NotNil(t, pair)
		assert.Equal(t, -CorrelationBound, pair.Correlation)
		assert.Equal(t, DefaultLookbackDays, pair.LookbackDays)
		assert.Equal(t, 119, pair.SampleSize)
	})

	t.Run("cache blob reloads", func(t *testing.T) {
		reloaded, err := repo.LoadLatestMatrix("2026-08-28")
		require.NoError(t, err)
		require.NotNil(t, reloaded)
		assert.Equal(t, matrix.FactorIDs(), reloaded.FactorIDs())
		assert.Equal(t, matrix.Get(1, 2), reloaded.Get(1, 2))
	})

	t.Run("cache lookup respects the date bound", func(t *testing.T) {
		earlier, err := repo.LoadLatestMatrix("2026-01-01")
		require.NoError(t, err)
		assert.Nil(t, earlier)
	})
}

func TestServiceComputeNoFactors(t *testing.T) {
	repo := setupCorrelationRepo(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	svc := NewService(&fakeFactorProvider{}, &fakeSeriesLoader{}, repo, log)
	_, err := svc.Compute(context.Background(), 0, 0, time.Now())
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestServiceComputeCancelled(t *testing.T) {
	repo := setupCorrelationRepo(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(&fakeFactorProvider{}, &fakeSeriesLoader{}, repo, log)
	_, err := svc.Compute(ctx, 0, 0, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
