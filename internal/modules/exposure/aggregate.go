package exposure

import (
	"math"

	"github.com/aristath/riskcore/internal/domain"
)

// AggregatePortfolio reduces per-pair regression results to portfolio-level
// factor exposures using signed exposure weighting:
//
//	weight_i = |exposure_i| / gross_exposure
//	beta     = Σ weight_i × sign(exposure_i) × beta_i
//	         = Σ (exposure_i × beta_i) / gross_exposure
//
// When gross exposure is zero every position gets an equal weight. The
// per-factor dollar exposure is the position-level attribution
// Σ (exposure_i × beta_i); multiplying the aggregate beta by gross
// exposure instead would double-count mixed-sign books.
func AggregatePortfolio(portfolioID int64, date string, pairs []PairResult) []PortfolioFactorExposure {
	if len(pairs) == 0 {
		return nil
	}

	// Gross exposure over distinct positions
	grossByPosition := make(map[int64]float64)
	for _, p := range pairs {
		grossByPosition[p.PositionID] = math.Abs(p.Exposure)
	}
	gross := 0.0
	for _, e := range grossByPosition {
		gross += e
	}

	byFactor := make(map[int64][]PairResult)
	var factorOrder []int64
	for _, p := range pairs {
		if _, seen := byFactor[p.FactorID]; !seen {
			factorOrder = append(factorOrder, p.FactorID)
		}
		byFactor[p.FactorID] = append(byFactor[p.FactorID], p)
	}

	rows := make([]PortfolioFactorExposure, 0, len(byFactor))
	for _, factorID := range factorOrder {
		group := byFactor[factorID]

		row := PortfolioFactorExposure{
			PortfolioID: portfolioID,
			FactorID:    factorID,
			Date:        date,
			QualityFlag: domain.QualityFull,
		}

		for _, p := range group {
			signedBeta := p.Regression.Beta
			if p.Exposure < 0 {
				signedBeta = -signedBeta
			}

			var weight float64
			if gross > 0 {
				weight = math.Abs(p.Exposure) / gross
			} else {
				// Equal-weight fallback for an empty or fully offset book
				weight = 1.0 / float64(len(group))
			}

			row.Beta += weight * signedBeta
			row.BetaMagnitude += weight * math.Abs(p.Regression.Beta)
			row.DollarExposure += p.Exposure * p.Regression.Beta

			if p.QualityFlag == domain.QualityLimitedHistory || p.Degraded {
				row.QualityFlag = domain.QualityLimitedHistory
			}
		}

		rows = append(rows, row)
	}

	return rows
}
