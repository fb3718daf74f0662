package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles portfolio and snapshot database operations (portfolio.db).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// GetAllActive returns all active portfolios.
func (r *Repository) GetAllActive() ([]domain.Portfolio, error) {
	rows, err := r.db.Query(`
		SELECT id, name, currency, active, created_at
		FROM portfolios WHERE active = 1 ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		var p domain.Portfolio
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Currency, &p.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		portfolios = append(portfolios, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// UpsertSnapshot stores the daily exposure snapshot for a portfolio.
// Re-running a day overwrites the existing row.
func (r *Repository) UpsertSnapshot(snap Snapshot) error {
	_, err := r.db.Exec(`
		INSERT INTO portfolio_snapshots (portfolio_id, date, market_value,
			long_exposure, short_exposure, gross_exposure, net_exposure,
			position_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, date) DO UPDATE SET
			market_value = excluded.market_value,
			long_exposure = excluded.long_exposure,
			short_exposure = excluded.short_exposure,
			gross_exposure = excluded.gross_exposure,
			net_exposure = excluded.net_exposure,
			position_count = excluded.position_count,
			created_at = excluded.created_at
	`, snap.PortfolioID, snap.Date, snap.Summary.MarketValue,
		snap.Summary.LongExposure, snap.Summary.ShortExposure,
		snap.Summary.GrossExposure, snap.Summary.NetExposure,
		snap.Summary.PositionCount, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for portfolio %d: %w", snap.PortfolioID, err)
	}
	return nil
}

// GetSnapshot returns the snapshot for a portfolio and date, or nil when
// none exists.
func (r *Repository) GetSnapshot(portfolioID int64, date string) (*Snapshot, error) {
	var snap Snapshot
	snap.PortfolioID = portfolioID
	snap.Date = date

	err := r.db.QueryRow(`
		SELECT market_value, long_exposure, short_exposure, gross_exposure,
			net_exposure, position_count
		FROM portfolio_snapshots
		WHERE portfolio_id = ? AND date = ?
	`, portfolioID, date).Scan(&snap.Summary.MarketValue,
		&snap.Summary.LongExposure, &snap.Summary.ShortExposure,
		&snap.Summary.GrossExposure, &snap.Summary.NetExposure,
		&snap.Summary.PositionCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot for portfolio %d: %w", portfolioID, err)
	}
	return &snap, nil
}
