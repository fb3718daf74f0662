package exposure

import "github.com/aristath/riskcore/internal/domain"

// PairResult is the outcome of one (position, factor) regression, carrying
// the signed dollar exposure used later for aggregation weights.
type PairResult struct {
	PositionID  int64
	FactorID    int64
	Exposure    float64 // signed dollar exposure of the position
	Regression  RegressionResult
	QualityFlag domain.QualityFlag
	Degraded    bool   // numerical failure: beta forced to 0
	Note        string // human-readable degradation note, logged not persisted
}

// PortfolioFactorExposure is the aggregated portfolio-level row for one
// factor.
type PortfolioFactorExposure struct {
	PortfolioID    int64
	FactorID       int64
	Date           string
	Beta           float64 // signed exposure-weighted beta
	BetaMagnitude  float64 // unsigned variant for risk-contribution reporting
	DollarExposure float64 // signed, position-level attribution
	QualityFlag    domain.QualityFlag
}

// Result is the full output of one exposure engine run.
type Result struct {
	PortfolioID int64
	Date        string
	Pairs       []PairResult
	Portfolio   []PortfolioFactorExposure
	QualityFlag domain.QualityFlag // worst flag across pairs
}
