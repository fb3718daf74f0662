// Package quality provides pre-flight data quality validation for the risk
// pipeline. The validator scores price coverage, history depth, and
// freshness; it gates downstream stages but never blocks them itself.
package quality

import (
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// Check weights. They sum to 1 so the quality score stays in [0, 1].
const (
	WeightCurrentPrice = 0.4
	WeightHistoryDepth = 0.3
	WeightFreshness    = 0.3
)

// Defaults for the individual checks.
const (
	// DefaultMinimumHistoricalDays is the stored-history depth a symbol
	// needs to count as covered.
	DefaultMinimumHistoricalDays = 30
	// DefaultFreshnessHours bounds the age of the last successful refresh.
	DefaultFreshnessHours = 48
	// DefaultCurrentPriceMaxAgeDays bounds the age of the latest close for
	// the current-price check.
	DefaultCurrentPriceMaxAgeDays = 7
	// DefaultMinimumCoverage is the score required for a "passed" report.
	DefaultMinimumCoverage = 0.90
)

// Config holds validator thresholds.
type Config struct {
	MinimumHistoricalDays  int
	FreshnessHours         int
	CurrentPriceMaxAgeDays int
	MinimumCoverage        float64
}

// DefaultConfig returns the standard validator thresholds.
func DefaultConfig() Config {
	return Config{
		MinimumHistoricalDays:  DefaultMinimumHistoricalDays,
		FreshnessHours:         DefaultFreshnessHours,
		CurrentPriceMaxAgeDays: DefaultCurrentPriceMaxAgeDays,
		MinimumCoverage:        DefaultMinimumCoverage,
	}
}

// SymbolGap lists the checks a symbol failed.
type SymbolGap struct {
	Symbol string   `json:"symbol"`
	Issues []string `json:"issues"`
}

// Report is the structured validation result. It is always produced; the
// validator never raises.
type Report struct {
	Status               string      `json:"status"` // passed / failed
	QualityScore         float64     `json:"quality_score"`
	CurrentPriceCoverage float64     `json:"current_price_coverage"`
	HistoryDepthCoverage float64     `json:"history_depth_coverage"`
	FreshnessCoverage    float64     `json:"freshness_coverage"`
	SymbolsChecked       int         `json:"symbols_checked"`
	Gaps                 []SymbolGap `json:"gaps"`
	Recommendations      []string    `json:"recommendations"`
}

// Passed reports whether the score met the minimum coverage.
func (r Report) Passed() bool {
	return r.Status == "passed"
}

// PriceStatsProvider is the slice of the price repository the validator
// needs. Satisfied by marketdata.PriceRepository.
type PriceStatsProvider interface {
	GetSymbolStats(symbol string) (marketdata.SymbolStats, error)
}

// Validator scores price data quality ahead of a batch run.
type Validator struct {
	prices PriceStatsProvider
	cfg    Config
	log    zerolog.Logger
}

// NewValidator creates a new data quality validator
func NewValidator(prices PriceStatsProvider, cfg Config, log zerolog.Logger) *Validator {
	if cfg.MinimumCoverage == 0 {
		cfg = DefaultConfig()
	}
	return &Validator{
		prices: prices,
		cfg:    cfg,
		log:    log.With().Str("component", "quality_validator").Logger(),
	}
}

// Validate scores the given symbols and returns a structured report.
// Repository errors degrade the affected symbol to "no data" instead of
// failing the validation.
func (v *Validator) Validate(symbols []string, asOf time.Time) Report {
	report := Report{SymbolsChecked: len(symbols)}
	if len(symbols) == 0 {
		report.Status = "failed"
		report.Recommendations = append(report.Recommendations,
			"No symbols to validate; check that portfolios have active positions")
		return report
	}

	var withPrice, withHistory, fresh int
	priceCutoff := asOf.AddDate(0, 0, -v.cfg.CurrentPriceMaxAgeDays).Format("2006-01-02")
	freshCutoff := asOf.Add(-time.Duration(v.cfg.FreshnessHours) * time.Hour).Unix()

	for _, symbol := range symbols {
		stats, err := v.prices.GetSymbolStats(symbol)
		if err != nil {
			v.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to read symbol stats, treating as missing")
			report.Gaps = append(report.Gaps, SymbolGap{
				Symbol: symbol,
				Issues: []string{"stats unavailable"},
			})
			continue
		}

		var issues []string
		if stats.LatestDate >= priceCutoff && stats.LatestDate != "" {
			withPrice++
		} else {
			issues = append(issues, fmt.Sprintf("no close within %d days", v.cfg.CurrentPriceMaxAgeDays))
		}
		if stats.HistoryDays >= v.cfg.MinimumHistoricalDays {
			withHistory++
		} else {
			issues = append(issues, fmt.Sprintf("only %d of %d required history days",
				stats.HistoryDays, v.cfg.MinimumHistoricalDays))
		}
		if stats.LastFetchedAt >= freshCutoff && stats.LastFetchedAt > 0 {
			fresh++
		} else {
			issues = append(issues, fmt.Sprintf("not refreshed within %d hours", v.cfg.FreshnessHours))
		}

		if len(issues) > 0 {
			report.Gaps = append(report.Gaps, SymbolGap{Symbol: symbol, Issues: issues})
		}
	}

	n := float64(len(symbols))
	report.CurrentPriceCoverage = float64(withPrice) / n
	report.HistoryDepthCoverage = float64(withHistory) / n
	report.FreshnessCoverage = float64(fresh) / n
	report.QualityScore = WeightCurrentPrice*report.CurrentPriceCoverage +
		WeightHistoryDepth*report.HistoryDepthCoverage +
		WeightFreshness*report.FreshnessCoverage

	if report.QualityScore >= v.cfg.MinimumCoverage {
		report.Status = "passed"
	} else {
		report.Status = "failed"
	}

	report.Recommendations = v.recommend(report)

	v.log.Info().
		Float64("score", report.QualityScore).
		Str("status", report.Status).
		Int("gaps", len(report.Gaps)).
		Msg("Data quality validation finished")
	return report
}

// recommend produces human-readable follow-ups for a report.
func (v *Validator) recommend(r Report) []string {
	var recs []string
	if r.CurrentPriceCoverage < 1 {
		recs = append(recs, fmt.Sprintf(
			"%.0f%% of symbols lack a recent close; re-run the market data refresh",
			(1-r.CurrentPriceCoverage)*100))
	}
	if r.HistoryDepthCoverage < 1 {
		recs = append(recs, fmt.Sprintf(
			"%.0f%% of symbols have shallow history; betas for them will carry a limited_history flag",
			(1-r.HistoryDepthCoverage)*100))
	}
	if r.FreshnessCoverage < 1 {
		recs = append(recs, fmt.Sprintf(
			"%.0f%% of symbols are stale beyond %d hours; check provider availability",
			(1-r.FreshnessCoverage)*100, v.cfg.FreshnessHours))
	}
	if len(recs) == 0 {
		recs = append(recs, "All symbols fully covered")
	}
	return recs
}
