// Package stooq provides a daily price history client backed by the free
// Stooq CSV endpoint. It satisfies the market data provider boundary.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/riskcore/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// Client fetches daily OHLC history from stooq.com.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Stooq client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://stooq.com/q/d/l/",
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "stooq").Logger(),
	}
}

// FetchDailyCloses returns daily closes for a symbol over [from, to],
// ascending by date. Symbols without data yield an empty slice, not an
// error; the sync service decides how to degrade.
func (c *Client) FetchDailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]marketdata.DailyClose, error) {
	url := fmt.Sprintf("%s?s=%s&d1=%s&d2=%s&i=d",
		c.baseURL, strings.ToLower(symbol),
		from.Format("20060102"), to.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq returned status %d for %s", resp.StatusCode, symbol)
	}

	closes, err := c.parseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response for %s: %w", symbol, err)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("rows", len(closes)).
		Msg("Fetched daily closes")
	return closes, nil
}

// parseCSV reads the Stooq daily CSV: Date,Open,High,Low,Close,Volume.
// Rows with unparseable dates or closes are skipped; "No data" responses
// produce an empty slice.
func (c *Client) parseCSV(r io.Reader) ([]marketdata.DailyClose, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return nil, nil
	}

	closes := make([]marketdata.DailyClose, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 5 {
			continue
		}
		date := record[0]
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		closeVal, err := strconv.ParseFloat(record[4], 64)
		if err != nil || closeVal <= 0 {
			continue
		}
		closes = append(closes, marketdata.DailyClose{Date: date, Close: closeVal})
	}
	return closes, nil
}
