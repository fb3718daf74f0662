package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/riskcore/internal/domain"
)

func TestComputeExposureSummary(t *testing.T) {
	positions := []domain.Position{
		{
			Symbol:       "AAPL",
			Quantity:     100,
			CurrentPrice: 100,
			Multiplier:   1,
			Variant:      domain.Variant{Instrument: domain.InstrumentStock, Direction: domain.DirectionLong},
		},
		{
			Symbol:       "TSLA",
			Quantity:     50,
			CurrentPrice: 80,
			Multiplier:   1,
			Variant:      domain.Variant{Instrument: domain.InstrumentStock, Direction: domain.DirectionShort},
		},
		{
			Symbol:       "SPY",
			Quantity:     2,
			CurrentPrice: 5,
			Multiplier:   100,
			Variant:      domain.Variant{Instrument: domain.InstrumentPut, Direction: domain.DirectionShort},
		},
	}

	summary := ComputeExposureSummary(positions)

	assert.Equal(t, 3, summary.PositionCount)
	assert.Equal(t, 10000.0, summary.LongExposure)
	assert.Equal(t, -5000.0, summary.ShortExposure, "short exposure stays signed")
	assert.Equal(t, 15000.0, summary.GrossExposure)
	assert.Equal(t, 5000.0, summary.NetExposure)
	assert.Equal(t, summary.GrossExposure, summary.MarketValue)
}

func TestComputeExposureSummaryIdentities(t *testing.T) {
	positions := []domain.Position{
		{Quantity: 10, CurrentPrice: 123.45, Multiplier: 1,
			Variant: domain.Variant{Instrument: domain.InstrumentStock, Direction: domain.DirectionLong}},
		{Quantity: 7, CurrentPrice: 88.2, Multiplier: 1,
			Variant: domain.Variant{Instrument: domain.InstrumentStock, Direction: domain.DirectionShort}},
		{Quantity: 3, CurrentPrice: 2.15, Multiplier: 100,
			Variant: domain.Variant{Instrument: domain.InstrumentCall, Direction: domain.DirectionLong}},
	}

	s := ComputeExposureSummary(positions)
	assert.InDelta(t, s.LongExposure-s.ShortExposure, s.GrossExposure, 1e-9)
	assert.InDelta(t, s.LongExposure+s.ShortExposure, s.NetExposure, 1e-9)
}

func TestComputeExposureSummaryEmpty(t *testing.T) {
	s := ComputeExposureSummary(nil)
	assert.Zero(t, s.PositionCount)
	assert.Zero(t, s.GrossExposure)
	assert.Zero(t, s.NetExposure)
}
