package correlation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// PairRow is one persisted factor pair correlation.
type PairRow struct {
	FactorA      int64
	FactorB      int64
	Date         string
	Correlation  float64
	LookbackDays int
	DecayFactor  float64
	SampleSize   int
}

// Repository handles correlation persistence (risk.db): pairwise rows for
// queries plus a msgpack matrix blob for fast reload by the stress engine.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new correlation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "correlation").Logger(),
	}
}

// SaveMatrix upserts the pairwise rows and the cache blob for one date in
// a single transaction. Pairs are stored with factor_a < factor_b; the
// matrix type owns symmetry.
func (r *Repository) SaveMatrix(matrix *Matrix, pairs []PairRow, date string) error {
	blob, err := msgpack.Marshal(matrix.toSnapshot())
	if err != nil {
		return fmt.Errorf("failed to encode matrix snapshot: %w", err)
	}

	now := time.Now().Unix()
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO factor_correlation (factor_a, factor_b,
				calculation_date, correlation, lookback_days, decay_factor,
				sample_size, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(factor_a, factor_b, calculation_date) DO UPDATE SET
				correlation = excluded.correlation,
				lookback_days = excluded.lookback_days,
				decay_factor = excluded.decay_factor,
				sample_size = excluded.sample_size,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare correlation upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range pairs {
			a, b := p.FactorA, p.FactorB
			if a > b {
				a, b = b, a
			}
			if _, err := stmt.Exec(a, b, p.Date, p.Correlation,
				p.LookbackDays, p.DecayFactor, p.SampleSize, now); err != nil {
				return fmt.Errorf("failed to upsert correlation %d/%d: %w", a, b, err)
			}
		}

		_, err = tx.Exec(`
			INSERT INTO correlation_matrix_cache (calculation_date, matrix, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(calculation_date) DO UPDATE SET
				matrix = excluded.matrix,
				updated_at = excluded.updated_at
		`, date, blob, now)
		if err != nil {
			return fmt.Errorf("failed to upsert matrix cache: %w", err)
		}

		return nil
	})
}

// LoadLatestMatrix returns the most recent cached matrix on or before the
// given date, or nil when none exists.
func (r *Repository) LoadLatestMatrix(date string) (*Matrix, error) {
	var blob []byte
	err := r.db.QueryRow(`
		SELECT matrix FROM correlation_matrix_cache
		WHERE calculation_date <= ?
		ORDER BY calculation_date DESC LIMIT 1
	`, date).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load matrix cache: %w", err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode matrix snapshot: %w", err)
	}
	return fromSnapshot(snap)
}

// GetPair returns the persisted correlation row for a factor pair and
// date, or nil when absent.
func (r *Repository) GetPair(factorA, factorB int64, date string) (*PairRow, error) {
	a, b := factorA, factorB
	if a > b {
		a, b = b, a
	}

	row := PairRow{FactorA: a, FactorB: b, Date: date}
	err := r.db.QueryRow(`
		SELECT correlation, lookback_days, decay_factor, sample_size
		FROM factor_correlation
		WHERE factor_a = ? AND factor_b = ? AND calculation_date = ?
	`, a, b, date).Scan(&row.Correlation, &row.LookbackDays, &row.DecayFactor, &row.SampleSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation pair: %w", err)
	}
	return &row, nil
}
