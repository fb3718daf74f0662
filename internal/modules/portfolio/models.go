// Package portfolio provides portfolio and position data access plus
// signed exposure aggregation.
package portfolio

// ExposureSummary holds the signed exposure aggregates for one portfolio.
//
// Invariants:
//   - ShortExposure <= 0 (stored signed)
//   - GrossExposure = LongExposure + |ShortExposure|
//   - NetExposure = LongExposure - |ShortExposure|
type ExposureSummary struct {
	LongExposure  float64
	ShortExposure float64
	GrossExposure float64
	NetExposure   float64
	MarketValue   float64 // Stress base: the portfolio's gross economic footprint
	PositionCount int
}

// Snapshot is a persisted daily exposure snapshot for one portfolio.
type Snapshot struct {
	PortfolioID int64
	Date        string // YYYY-MM-DD
	Summary     ExposureSummary
}
