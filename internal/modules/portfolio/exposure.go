package portfolio

import "github.com/aristath/riskcore/internal/domain"

// ComputeExposureSummary aggregates signed position exposures.
// Long positions add to LongExposure, short positions to ShortExposure
// (kept signed, <= 0). The side comes from the position's Direction tag,
// never from quantity sign or symbol shape.
func ComputeExposureSummary(positions []domain.Position) ExposureSummary {
	var summary ExposureSummary
	for _, pos := range positions {
		exposure := pos.SignedExposure()
		if exposure >= 0 {
			summary.LongExposure += exposure
		} else {
			summary.ShortExposure += exposure
		}
		summary.PositionCount++
	}

	summary.GrossExposure = summary.LongExposure - summary.ShortExposure // ShortExposure <= 0
	summary.NetExposure = summary.LongExposure + summary.ShortExposure
	// The stress engine scales shocks by the portfolio's gross economic
	// footprint: a market-neutral book still carries gross risk.
	summary.MarketValue = summary.GrossExposure
	return summary
}
