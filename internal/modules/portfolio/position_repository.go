package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/rs/zerolog"
)

// PositionRepository handles position database operations (portfolio.db).
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetActiveByPortfolio returns all active positions for a portfolio.
// Rows with an unknown variant are skipped with a warning rather than
// failing the whole read.
func (r *PositionRepository) GetActiveByPortfolio(portfolioID int64) ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, symbol, variant, quantity, entry_price,
			current_price, strike, expiry, multiplier, last_updated
		FROM positions
		WHERE portfolio_id = ? AND active = 1
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var variantStr string
		var strike sql.NullFloat64
		var expiry sql.NullString
		var lastUpdated int64

		err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.Symbol, &variantStr,
			&pos.Quantity, &pos.EntryPrice, &pos.CurrentPrice,
			&strike, &expiry, &pos.Multiplier, &lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		variant, err := domain.ParseVariant(variantStr)
		if err != nil {
			r.log.Warn().Err(err).Int64("position_id", pos.ID).Msg("Skipping position with unknown variant")
			continue
		}
		pos.Variant = variant

		if strike.Valid {
			pos.Strike = &strike.Float64
		}
		if expiry.Valid {
			pos.Expiry = &expiry.String
		}
		pos.LastUpdated = time.Unix(lastUpdated, 0).UTC()

		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetActiveSymbols returns the distinct symbols of all active positions
// across all active portfolios. Used to build the market refresh set.
func (r *PositionRepository) GetActiveSymbols() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT p.symbol
		FROM positions p
		JOIN portfolios pf ON pf.id = p.portfolio_id
		WHERE p.active = 1 AND pf.active = 1
		ORDER BY p.symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}
