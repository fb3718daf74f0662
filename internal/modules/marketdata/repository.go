package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/database"
	"github.com/rs/zerolog"
)

// PriceRepository handles price history database operations (market.db).
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// UpsertCloses stores daily closes for a symbol. Existing (symbol, date)
// rows are overwritten, never duplicated. All rows commit in one
// transaction so a crash cannot leave a symbol's refresh half-written.
func (r *PriceRepository) UpsertCloses(symbol string, closes []DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	now := time.Now().Unix()
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO price_history (symbol, date, close, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				close = excluded.close,
				fetched_at = excluded.fetched_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range closes {
			if _, err := stmt.Exec(symbol, c.Date, c.Close, now); err != nil {
				return fmt.Errorf("failed to upsert price %s/%s: %w", symbol, c.Date, err)
			}
		}
		return nil
	})
}

// GetCloses returns daily closes for a symbol over [from, to], ascending.
func (r *PriceRepository) GetCloses(symbol string, from, to time.Time) ([]DailyClose, error) {
	rows, err := r.db.Query(`
		SELECT date, close FROM price_history
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query closes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var closes []DailyClose
	for rows.Next() {
		var c DailyClose
		if err := rows.Scan(&c.Date, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close for %s: %w", symbol, err)
		}
		closes = append(closes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closes for %s: %w", symbol, err)
	}

	return closes, nil
}

// SymbolStats summarizes stored history for one symbol. Consumed by the
// data quality validator.
type SymbolStats struct {
	Symbol        string
	HistoryDays   int    // Number of stored daily closes
	LatestDate    string // YYYY-MM-DD of the most recent close, "" if none
	LastFetchedAt int64  // Unix timestamp of the most recent refresh, 0 if none
}

// GetSymbolStats returns history stats for a symbol.
func (r *PriceRepository) GetSymbolStats(symbol string) (SymbolStats, error) {
	stats := SymbolStats{Symbol: symbol}

	var latestDate sql.NullString
	var lastFetched sql.NullInt64
	err := r.db.QueryRow(`
		SELECT COUNT(*), MAX(date), MAX(fetched_at)
		FROM price_history WHERE symbol = ?
	`, symbol).Scan(&stats.HistoryDays, &latestDate, &lastFetched)
	if err != nil {
		return stats, fmt.Errorf("failed to query symbol stats for %s: %w", symbol, err)
	}

	if latestDate.Valid {
		stats.LatestDate = latestDate.String
	}
	if lastFetched.Valid {
		stats.LastFetchedAt = lastFetched.Int64
	}
	return stats, nil
}
