package marketdata

import (
	"sort"

	"github.com/aristath/riskcore/pkg/formulas"
)

// ReturnSeries is a daily simple-return series keyed by date.
// Dates are sorted ascending and parallel to Values.
type ReturnSeries struct {
	Dates  []string
	Values []float64
	byDate map[string]float64
}

// BuildReturnSeries converts an ascending daily close series into a simple
// daily return series. The first close has no return; n closes yield n-1
// returns, each keyed by the later date.
func BuildReturnSeries(closes []DailyClose) ReturnSeries {
	if len(closes) < 2 {
		return ReturnSeries{byDate: map[string]float64{}}
	}

	prices := make([]float64, len(closes))
	for i, c := range closes {
		prices[i] = c.Close
	}
	returns := formulas.CalculateReturns(prices)

	rs := ReturnSeries{
		Dates:  make([]string, len(returns)),
		Values: returns,
		byDate: make(map[string]float64, len(returns)),
	}
	for i, r := range returns {
		date := closes[i+1].Date
		rs.Dates[i] = date
		rs.byDate[date] = r
	}
	return rs
}

// Scale returns a copy of the series with every value multiplied by k.
func (rs ReturnSeries) Scale(k float64) ReturnSeries {
	scaled := ReturnSeries{
		Dates:  rs.Dates,
		Values: make([]float64, len(rs.Values)),
		byDate: make(map[string]float64, len(rs.Values)),
	}
	for i, v := range rs.Values {
		scaled.Values[i] = v * k
		scaled.byDate[rs.Dates[i]] = scaled.Values[i]
	}
	return scaled
}

// Tail returns a series holding only the most recent n observations.
func (rs ReturnSeries) Tail(n int) ReturnSeries {
	if rs.Len() <= n {
		return rs
	}
	start := rs.Len() - n
	tail := ReturnSeries{
		Dates:  rs.Dates[start:],
		Values: rs.Values[start:],
		byDate: make(map[string]float64, n),
	}
	for i, d := range tail.Dates {
		tail.byDate[d] = tail.Values[i]
	}
	return tail
}

// Len returns the number of observations in the series.
func (rs ReturnSeries) Len() int {
	return len(rs.Values)
}

// At returns the return for a date and whether it exists.
func (rs ReturnSeries) At(date string) (float64, bool) {
	v, ok := rs.byDate[date]
	return v, ok
}

// Align intersects two return series on their shared dates and returns
// the paired values sorted ascending by date.
func Align(a, b ReturnSeries) (x, y []float64, dates []string) {
	for _, d := range a.Dates {
		if _, ok := b.byDate[d]; ok {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)

	x = make([]float64, len(dates))
	y = make([]float64, len(dates))
	for i, d := range dates {
		x[i] = a.byDate[d]
		y[i] = b.byDate[d]
	}
	return x, y, dates
}
