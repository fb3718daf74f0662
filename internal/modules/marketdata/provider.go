// Package marketdata provides access to daily price history: an external
// provider boundary, a local price store, and return-series construction.
package marketdata

import (
	"context"
	"time"
)

// DailyClose is a single daily closing price.
type DailyClose struct {
	Date  string  // YYYY-MM-DD
	Close float64
}

// Provider is the external market data source. Implementations wrap a
// vendor API; the pipeline only ever sees this interface.
type Provider interface {
	// FetchDailyCloses returns daily closes for a symbol over [from, to],
	// ascending by date. An empty result is not an error; the caller decides
	// how to degrade.
	FetchDailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]DailyClose, error)
}
