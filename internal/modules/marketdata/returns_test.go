package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildReturnSeries(t *testing.T) {
	t.Run("n closes yield n-1 returns keyed by the later date", func(t *testing.T) {
		closes := []DailyClose{
			{Date: "2026-01-05", Close: 100},
			{Date: "2026-01-06", Close: 110},
			{Date: "2026-01-07", Close: 99},
		}

		rs := BuildReturnSeries(closes)
		assert.Equal(t, 2, rs.Len())
		assert.Equal(t, []string{"2026-01-06", "2026-01-07"}, rs.Dates)

		r, ok := rs.At("2026-01-06")
		assert.True(t, ok)
		assert.InDelta(t, 0.10, r, 1e-12)

		r, ok = rs.At("2026-01-07")
		assert.True(t, ok)
		assert.InDelta(t, -0.10, r, 1e-12)

		_, ok = rs.At("2026-01-05")
		assert.False(t, ok, "the first close has no return")
	})

	t.Run("fewer than two closes", func(t *testing.T) {
		assert.Equal(t, 0, BuildReturnSeries(nil).Len())
		assert.Equal(t, 0, BuildReturnSeries([]DailyClose{{Date: "2026-01-05", Close: 100}}).Len())
	})
}

func TestReturnSeriesScale(t *testing.T) {
	rs := BuildReturnSeries([]DailyClose{
		{Date: "2026-01-05", Close: 100},
		{Date: "2026-01-06", Close: 110},
	})

	scaled := rs.Scale(-1)
	r, ok := scaled.At("2026-01-06")
	assert.True(t, ok)
	assert.InDelta(t, -0.10, r, 1e-12)

	// Original untouched
	r, _ = rs.At("2026-01-06")
	assert.InDelta(t, 0.10, r, 1e-12)
}

func TestReturnSeriesTail(t *testing.T) {
	rs := BuildReturnSeries([]DailyClose{
		{Date: "2026-01-05", Close: 100},
		{Date: "2026-01-06", Close: 101},
		{Date: "2026-01-07", Close: 102},
		{Date: "2026-01-08", Close: 103},
	})

	tail := rs.Tail(2)
	assert.Equal(t, 2, tail.Len())
	assert.Equal(t, []string{"2026-01-07", "2026-01-08"}, tail.Dates)

	_, ok := tail.At("2026-01-06")
	assert.False(t, ok)

	// Tail larger than the series is the series itself
	assert.Equal(t, 3, rs.Tail(10).Len())
}

func TestAlign(t *testing.T) {
	a := BuildReturnSeries([]DailyClose{
		{Date: "2026-01-05", Close: 100},
		{Date: "2026-01-06", Close: 102},
		{Date: "2026-01-07", Close: 104},
		{Date: "2026-01-08", Close: 106},
	})
	// b is missing Jan 7: the pair must drop that date from both sides
	b := BuildReturnSeries([]DailyClose{
		{Date: "2026-01-05", Close: 50},
		{Date: "2026-01-06", Close: 51},
		{Date: "2026-01-08", Close: 52},
	})

	x, y, dates := Align(a, b)
	assert.Equal(t, []string{"2026-01-06", "2026-01-08"}, dates)
	assert.Len(t, x, 2)
	assert.Len(t, y, 2)
	assert.InDelta(t, 0.02, x[0], 1e-12)
	assert.InDelta(t, 51.0/50.0-1, y[0], 1e-12)
}
