package quality

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/riskcore/internal/modules/marketdata"
)

type fakeStatsProvider struct {
	stats map[string]marketdata.SymbolStats
	errs  map[string]error
}

func (f *fakeStatsProvider) GetSymbolStats(symbol string) (marketdata.SymbolStats, error) {
	if err, ok := f.errs[symbol]; ok {
		return marketdata.SymbolStats{}, err
	}
	return f.stats[symbol], nil
}

func newValidator(provider PriceStatsProvider, cfg Config) *Validator {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewValidator(provider, cfg, log)
}

func healthyStats(asOf time.Time) marketdata.SymbolStats {
	return marketdata.SymbolStats{
		HistoryDays:   90,
		LatestDate:    asOf.Format("2006-01-02"),
		LastFetchedAt: asOf.Unix(),
	}
}

func TestValidateAllHealthy(t *testing.T) {
	asOf := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	provider := &fakeStatsProvider{stats: map[string]marketdata.SymbolStats{
		"SPY": healthyStats(asOf),
		"TLT": healthyStats(asOf),
	}}

	report := newValidator(provider, DefaultConfig()).Validate([]string{"SPY", "TLT"}, asOf)

	assert.True(t, report.Passed())
	assert.Equal(t, 1.0, report.QualityScore)
	assert.Equal(t, 2, report.SymbolsChecked)
	assert.Empty(t, report.Gaps)
	assert.Equal(t, []string{"All symbols fully covered"}, report.Recommendations)
}

func TestValidateWeightedScore(t *testing.T) {
	// 20 symbols: 19 with a recent close, 18 with enough history, 16 fresh.
	// Score = 0.4*0.95 + 0.3*0.90 + 0.3*0.80 = 0.89, below the 0.90 default.
	asOf := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	stale := asOf.Add(-72 * time.Hour)

	provider := &fakeStatsProvider{stats: map[string]marketdata.SymbolStats{}}
	symbols := make([]string, 20)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02d", i)
		s := healthyStats(asOf)
		if i == 0 {
			s.LatestDate = "2026-07-01" // beyond the current-price window
		}
		if i < 2 {
			s.HistoryDays = 5
		}
		if i < 4 {
			s.LastFetchedAt = stale.Unix()
		}
		provider.stats[symbols[i]] = s
	}

	report := newValidator(provider, DefaultConfig()).Validate(symbols, asOf)

	assert.InDelta(t, 0.95, report.CurrentPriceCoverage, 1e-12)
	assert.InDelta(t, 0.90, report.HistoryDepthCoverage, 1e-12)
	assert.InDelta(t, 0.80, report.FreshnessCoverage, 1e-12)
	assert.InDelta(t, 0.89, report.QualityScore, 1e-12)
	assert.False(t, report.Passed())
	assert.Len(t, report.Gaps, 4)
}

func TestValidateNoSymbols(t *testing.T) {
	report := newValidator(&fakeStatsProvider{}, DefaultConfig()).Validate(nil, time.Now())
	assert.False(t, report.Passed())
	assert.Zero(t, report.SymbolsChecked)
	assert.NotEmpty(t, report.Recommendations)
}

func TestValidateProviderErrorDegrades(t *testing.T) {
	asOf := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	provider := &fakeStatsProvider{
		stats: map[string]marketdata.SymbolStats{"SPY": healthyStats(asOf)},
		errs:  map[string]error{"BAD": errors.New("disk gremlins")},
	}

	// The validator never raises: a repository error counts the symbol as
	// missing and the report still comes back.
	report := newValidator(provider, DefaultConfig()).Validate([]string{"SPY", "BAD"}, asOf)

	assert.Equal(t, 2, report.SymbolsChecked)
	assert.InDelta(t, 0.5, report.CurrentPriceCoverage, 1e-12)
	assert.Len(t, report.Gaps, 1)
	assert.Equal(t, "BAD", report.Gaps[0].Symbol)
	assert.Contains(t, report.Gaps[0].Issues, "stats unavailable")
}
