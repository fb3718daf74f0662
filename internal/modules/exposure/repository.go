package exposure

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/database"
	"github.com/aristath/riskcore/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles factor exposure persistence (risk.db).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new exposure repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "exposure").Logger(),
	}
}

// SaveResult upserts all position- and portfolio-level rows for one
// (portfolio, date) in a single transaction: either the whole day's
// exposures commit, or none do.
func (r *Repository) SaveResult(result Result) error {
	now := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		posStmt, err := tx.Prepare(`
			INSERT INTO position_factor_exposure (position_id, factor_id,
				calculation_date, beta, r_squared, p_value, std_error,
				quality_flag, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(position_id, factor_id, calculation_date) DO UPDATE SET
				beta = excluded.beta,
				r_squared = excluded.r_squared,
				p_value = excluded.p_value,
				std_error = excluded.std_error,
				quality_flag = excluded.quality_flag,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare position exposure upsert: %w", err)
		}
		defer posStmt.Close()

		for _, p := range result.Pairs {
			_, err := posStmt.Exec(p.PositionID, p.FactorID, result.Date,
				p.Regression.Beta, p.Regression.RSquared, p.Regression.PValue,
				p.Regression.StdError, string(p.QualityFlag), now)
			if err != nil {
				return fmt.Errorf("failed to upsert position exposure %d/%d: %w",
					p.PositionID, p.FactorID, err)
			}
		}

		pfStmt, err := tx.Prepare(`
			INSERT INTO factor_exposure (portfolio_id, factor_id,
				calculation_date, beta, beta_magnitude, dollar_exposure,
				quality_flag, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(portfolio_id, factor_id, calculation_date) DO UPDATE SET
				beta = excluded.beta,
				beta_magnitude = excluded.beta_magnitude,
				dollar_exposure = excluded.dollar_exposure,
				quality_flag = excluded.quality_flag,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare portfolio exposure upsert: %w", err)
		}
		defer pfStmt.Close()

		for _, row := range result.Portfolio {
			_, err := pfStmt.Exec(row.PortfolioID, row.FactorID, row.Date,
				row.Beta, row.BetaMagnitude, row.DollarExposure,
				string(row.QualityFlag), now)
			if err != nil {
				return fmt.Errorf("failed to upsert portfolio exposure %d/%d: %w",
					row.PortfolioID, row.FactorID, err)
			}
		}

		return nil
	})
}

// GetPortfolioExposures returns the persisted portfolio-level exposures for
// a (portfolio, date), keyed by factor id. Consumed by the stress engine.
func (r *Repository) GetPortfolioExposures(portfolioID int64, date string) (map[int64]PortfolioFactorExposure, error) {
	rows, err := r.db.Query(`
		SELECT factor_id, beta, beta_magnitude, dollar_exposure, quality_flag
		FROM factor_exposure
		WHERE portfolio_id = ? AND calculation_date = ?
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio exposures: %w", err)
	}
	defer rows.Close()

	exposures := make(map[int64]PortfolioFactorExposure)
	for rows.Next() {
		row := PortfolioFactorExposure{PortfolioID: portfolioID, Date: date}
		var flag string
		err := rows.Scan(&row.FactorID, &row.Beta, &row.BetaMagnitude,
			&row.DollarExposure, &flag)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio exposure: %w", err)
		}
		row.QualityFlag = domain.QualityFlag(flag)
		exposures[row.FactorID] = row
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio exposures: %w", err)
	}

	return exposures, nil
}

// CountPositionRows returns the number of persisted position-level rows for
// a (portfolio, date). Used by idempotence checks and run summaries.
func (r *Repository) CountPositionRows(positionIDs []int64, date string) (int, error) {
	count := 0
	for _, id := range positionIDs {
		var n int
		err := r.db.QueryRow(`
			SELECT COUNT(*) FROM position_factor_exposure
			WHERE position_id = ? AND calculation_date = ?
		`, id, date).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to count position exposure rows: %w", err)
		}
		count += n
	}
	return count, nil
}
