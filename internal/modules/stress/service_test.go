package stress

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/aristath/riskcore/internal/modules/correlation"
	"github.com/aristath/riskcore/internal/modules/exposure"
	"github.com/aristath/riskcore/internal/modules/portfolio"

	_ "modernc.org/sqlite"
)

func setupStressRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE stress_test_scenario (
			scenario_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			shocks TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE stress_test_result (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			portfolio_id INTEGER NOT NULL,
			scenario_id TEXT NOT NULL,
			calculation_date TEXT NOT NULL,
			direct_pnl REAL NOT NULL,
			correlated_pnl REAL NOT NULL,
			correlation_effect REAL NOT NULL,
			breakdown TEXT NOT NULL,
			loss_cap_applied INTEGER NOT NULL,
			loss_cap_scale REAL NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db, log)
}

type fakeExposures struct {
	rows map[int64]exposure.PortfolioFactorExposure
}

func (f *fakeExposures) GetPortfolioExposures(portfolioID int64, date string) (map[int64]exposure.PortfolioFactorExposure, error) {
	return f.rows, nil
}

type fakeMatrices struct {
	matrix *correlation.Matrix
}

func (f *fakeMatrices) LoadLatestMatrix(date string) (*correlation.Matrix, error) {
	return f.matrix, nil
}

type fakeSnapshots struct {
	snap *portfolio.Snapshot
}

func (f *fakeSnapshots) GetSnapshot(portfolioID int64, date string) (*portfolio.Snapshot, error) {
	return f.snap, nil
}

type fakeFactors struct {
	factors []domain.Factor
}

func (f *fakeFactors) GetAllActive() ([]domain.Factor, error) {
	return f.factors, nil
}

func newStressService(t *testing.T, repo *Repository, exposures *fakeExposures,
	matrices *fakeMatrices, snapshots *fakeSnapshots, factors *fakeFactors) *Service {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewService(exposures, matrices, snapshots, factors, repo, log)
}

func grossSnapshot(gross float64) *portfolio.Snapshot {
	return &portfolio.Snapshot{
		Summary: portfolio.ExposureSummary{GrossExposure: gross, MarketValue: gross},
	}
}

func TestRunAllCorrelatedPropagation(t *testing.T) {
	repo := setupStressRepo(t)
	require.NoError(t, repo.SeedScenarios([]Scenario{{
		ID: "market_down_10", Name: "Broad market -10%",
		Category: "market", Severity: "moderate",
		Shocks: map[string]float64{"market": -0.10},
	}}))

	// $100k gross, market beta 1.2, rates beta -0.5, corr(market, rates) = -0.4
	matrix := correlation.NewMatrix([]int64{1, 2})
	require.NoError(t, matrix.Set(1, 2, -0.4))

	svc := newStressService(t, repo,
		&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{
			1: {FactorID: 1, Beta: 1.2},
			2: {FactorID: 2, Beta: -0.5},
		}},
		&fakeMatrices{matrix: matrix},
		&fakeSnapshots{snap: grossSnapshot(100000)},
		&fakeFactors{factors: []domain.Factor{
			{ID: 1, Name: "market"}, {ID: 2, Name: "rates"},
		}},
	)

	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	summary, results, err := svc.RunAll(context.Background(), 1, asOf)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	// Direct: 100000 * 1.2 * -0.10 = -12000; rates is not directly shocked.
	assert.InDelta(t, -12000, res.DirectPnL, 1e-9)
	// Correlated adds the propagated rates leg:
	// 100000 * -0.5 * (-0.10 * -0.4) = -2000
	assert.InDelta(t, -14000, res.CorrelatedPnL, 1e-9)
	assert.InDelta(t, -2000, res.CorrelationEffect, 1e-9)
	assert.False(t, res.LossCapApplied)
	assert.Equal(t, 1.0, res.LossCapScale)
	assert.Empty(t, res.MissingFactors)

	require.Len(t, res.Breakdown, 2)
	assert.Equal(t, int64(1), res.Breakdown[0].FactorID)
	assert.InDelta(t, -0.10, res.Breakdown[0].DirectShock, 1e-12)
	assert.InDelta(t, -0.10, res.Breakdown[0].EffectiveShock, 1e-12)
	assert.Equal(t, int64(2), res.Breakdown[1].FactorID)
	assert.InDelta(t, 0.0, res.Breakdown[1].DirectShock, 1e-12)
	assert.InDelta(t, 0.04, res.Breakdown[1].EffectiveShock, 1e-12)

	assert.Equal(t, "market_down_10", summary.WorstScenarioID)
	assert.InDelta(t, -14000, summary.WorstPnL, 1e-9)
	assert.Equal(t, 1, summary.Losses)
	assert.Zero(t, summary.Wins)

	t.Run("results persisted", func(t *testing.T) {
		stored, err := repo.GetResults(1, "2026-08-28")
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.InDelta(t, -14000, stored[0].CorrelatedPnL, 1e-9)
		require.Len(t, stored[0].Breakdown, 2)
	})
}

func TestRunAllLossCap(t *testing.T) {
	repo := setupStressRepo(t)
	require.NoError(t, repo.SeedScenarios([]Scenario{{
		ID: "wipeout", Name: "Wipeout",
		Category: "historical", Severity: "extreme",
		Shocks: map[string]float64{"market": -0.60},
	}}))

	// $10k gross at beta 2.0 under a -60% shock projects -12000, beyond
	// the 99% cap of 9900. A nil matrix collapses correlated to direct.
	svc := newStressService(t, repo,
		&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{
			1: {FactorID: 1, Beta: 2.0},
		}},
		&fakeMatrices{},
		&fakeSnapshots{snap: grossSnapshot(10000)},
		&fakeFactors{factors: []domain.Factor{{ID: 1, Name: "market"}}},
	)

	_, results, err := svc.RunAll(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.LossCapApplied)
	assert.InDelta(t, 9900.0/12000.0, res.LossCapScale, 1e-9)
	assert.InDelta(t, -9900, res.CorrelatedPnL, 1e-9)
	assert.InDelta(t, -9900, res.DirectPnL, 1e-9)
	assert.InDelta(t, 0, res.CorrelationEffect, 1e-9, "effect is measured after capping")
	require.Len(t, res.Breakdown, 1)
	assert.InDelta(t, -9900, res.Breakdown[0].CorrelatedPnL, 1e-9)
}

func TestRunAllGainsNeverCapped(t *testing.T) {
	repo := setupStressRepo(t)
	require.NoError(t, repo.SeedScenarios([]Scenario{{
		ID: "melt_up", Name: "Melt up",
		Category: "market", Severity: "extreme",
		Shocks: map[string]float64{"market": 0.60},
	}}))

	svc := newStressService(t, repo,
		&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{
			1: {FactorID: 1, Beta: 2.0},
		}},
		&fakeMatrices{},
		&fakeSnapshots{snap: grossSnapshot(10000)},
		&fakeFactors{factors: []domain.Factor{{ID: 1, Name: "market"}}},
	)

	_, results, err := svc.RunAll(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 12000, results[0].CorrelatedPnL, 1e-9)
	assert.False(t, results[0].LossCapApplied)
}

func TestRunAllMissingFactors(t *testing.T) {
	repo := setupStressRepo(t)
	require.NoError(t, repo.SeedScenarios([]Scenario{{
		ID: "rates_down_5", Name: "Rates -5%",
		Category: "rates", Severity: "moderate",
		Shocks: map[string]float64{
			"rates":   -0.05, // catalogued, but the portfolio has no exposure
			"unicorn": -0.20, // not in the catalog at all
		},
	}}))

	// Exposed only to market; the rates shock reaches it through the matrix.
	matrix := correlation.NewMatrix([]int64{1, 2})
	require.NoError(t, matrix.Set(2, 1, 0.8))

	svc := newStressService(t, repo,
		&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{
			1: {FactorID: 1, Beta: 1.0},
		}},
		&fakeMatrices{matrix: matrix},
		&fakeSnapshots{snap: grossSnapshot(100000)},
		&fakeFactors{factors: []domain.Factor{
			{ID: 1, Name: "market"}, {ID: 2, Name: "rates"},
		}},
	)

	_, results, err := svc.RunAll(context.Background(), 1, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, []string{"rates", "unicorn"}, res.MissingFactors)

	// No direct leg: the only exposed factor is not directly shocked.
	assert.InDelta(t, 0, res.DirectPnL, 1e-9)
	// The unexposed rates shock still propagates:
	// 100000 * 1.0 * (-0.05 * 0.8) = -4000. The unknown factor stays out.
	assert.InDelta(t, -4000, res.CorrelatedPnL, 1e-9)

	require.Len(t, res.Breakdown, 1)
	assert.Equal(t, int64(1), res.Breakdown[0].FactorID)
	assert.InDelta(t, 0, res.Breakdown[0].DirectShock, 1e-12)
	assert.InDelta(t, -0.04, res.Breakdown[0].EffectiveShock, 1e-12)
}

func TestRunCategoryFiltersWithoutPersisting(t *testing.T) {
	repo := setupStressRepo(t)
	require.NoError(t, repo.SeedScenarios([]Scenario{
		{ID: "market_down_10", Name: "Broad market -10%", Category: "market",
			Severity: "moderate", Shocks: map[string]float64{"market": -0.10}},
		{ID: "gfc_2008", Name: "2008 replay", Category: "historical",
			Severity: "extreme", Shocks: map[string]float64{"market": -0.40}},
	}))

	svc := newStressService(t, repo,
		&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{
			1: {FactorID: 1, Beta: 1.0},
		}},
		&fakeMatrices{},
		&fakeSnapshots{snap: grossSnapshot(100000)},
		&fakeFactors{factors: []domain.Factor{{ID: 1, Name: "market"}}},
	)

	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	summary, results, err := svc.RunCategory(context.Background(), 1, asOf, "historical")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gfc_2008", results[0].ScenarioID)
	assert.Equal(t, 1, summary.Scenarios)

	// Ad-hoc filtered runs never overwrite the stored full-run results
	stored, err := repo.GetResults(1, "2026-08-28")
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, _, err = svc.RunCategory(context.Background(), 1, asOf, "volatility")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestRunAllDataUnavailable(t *testing.T) {
	scenario := Scenario{
		ID: "market_down_10", Name: "Broad market -10%",
		Category: "market", Severity: "moderate",
		Shocks: map[string]float64{"market": -0.10},
	}

	t.Run("no active scenarios", func(t *testing.T) {
		repo := setupStressRepo(t)
		svc := newStressService(t, repo,
			&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{1: {FactorID: 1, Beta: 1}}},
			&fakeMatrices{}, &fakeSnapshots{snap: grossSnapshot(1000)}, &fakeFactors{})
		_, _, err := svc.RunAll(context.Background(), 1, time.Now())
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})

	t.Run("no exposures", func(t *testing.T) {
		repo := setupStressRepo(t)
		require.NoError(t, repo.SeedScenarios([]Scenario{scenario}))
		svc := newStressService(t, repo,
			&fakeExposures{}, &fakeMatrices{},
			&fakeSnapshots{snap: grossSnapshot(1000)}, &fakeFactors{})
		_, _, err := svc.RunAll(context.Background(), 1, time.Now())
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})

	t.Run("no usable snapshot", func(t *testing.T) {
		repo := setupStressRepo(t)
		require.NoError(t, repo.SeedScenarios([]Scenario{scenario}))
		svc := newStressService(t, repo,
			&fakeExposures{rows: map[int64]exposure.PortfolioFactorExposure{1: {FactorID: 1, Beta: 1}}},
			&fakeMatrices{}, &fakeSnapshots{}, &fakeFactors{})
		_, _, err := svc.RunAll(context.Background(), 1, time.Now())
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})
}

func TestSeedScenariosDeactivatesRemoved(t *testing.T) {
	repo := setupStressRepo(t)

	require.NoError(t, repo.SeedScenarios([]Scenario{
		{ID: "a", Name: "A", Category: "market", Severity: "mild", Shocks: map[string]float64{"market": -0.1}},
		{ID: "b", Name: "B", Category: "market", Severity: "mild", Shocks: map[string]float64{"market": -0.2}},
	}))

	// Re-seed without "b": it must survive as an inactive row
	require.NoError(t, repo.SeedScenarios([]Scenario{
		{ID: "a", Name: "A", Category: "market", Severity: "severe", Shocks: map[string]float64{"market": -0.15}},
	}))

	active, err := repo.GetActiveScenarios()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "severe", active[0].Severity)
	assert.Equal(t, map[string]float64{"market": -0.15}, active[0].Shocks)
}

func TestSaveResultsReplaces(t *testing.T) {
	repo := setupStressRepo(t)

	first := []ScenarioResult{
		{ScenarioID: "a", DirectPnL: -1, CorrelatedPnL: -1, LossCapScale: 1},
		{ScenarioID: "b", DirectPnL: -2, CorrelatedPnL: -2, LossCapScale: 1},
	}
	require.NoError(t, repo.SaveResults(1, "2026-08-28", first))

	// A re-run with a trimmed catalog must not leave the old "b" row behind
	second := []ScenarioResult{
		{ScenarioID: "a", DirectPnL: -3, CorrelatedPnL: -3, LossCapScale: 1},
	}
	require.NoError(t, repo.SaveResults(1, "2026-08-28", second))

	stored, err := repo.GetResults(1, "2026-08-28")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].ScenarioID)
	assert.InDelta(t, -3, stored[0].CorrelatedPnL, 1e-9)
}
