// Package greeks provides optional option-delta data. Deltas come from an
// external provider; their absence disables delta adjustment only and never
// fails the pipeline.
package greeks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/rs/zerolog"
)

// Provider is the external greeks source. Implementations wrap a vendor
// API or pricing service.
type Provider interface {
	// Delta returns the option delta for a position, or ok=false when the
	// provider has no value for it.
	Delta(ctx context.Context, position domain.Position) (delta float64, ok bool, err error)
}

// Repository handles option delta storage (portfolio.db).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new greeks repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "greeks").Logger(),
	}
}

// UpsertDelta stores the delta for a position and date, overwriting any
// existing row.
func (r *Repository) UpsertDelta(positionID int64, date string, delta float64) error {
	_, err := r.db.Exec(`
		INSERT INTO option_deltas (position_id, date, delta, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(position_id, date) DO UPDATE SET
			delta = excluded.delta,
			updated_at = excluded.updated_at
	`, positionID, date, delta, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert delta for position %d: %w", positionID, err)
	}
	return nil
}

// GetDeltas returns the stored deltas for a portfolio's positions on a
// date, keyed by position ID. Positions without a delta are simply absent.
func (r *Repository) GetDeltas(portfolioID int64, date string) (map[int64]float64, error) {
	rows, err := r.db.Query(`
		SELECT d.position_id, d.delta
		FROM option_deltas d
		JOIN positions p ON p.id = d.position_id
		WHERE p.portfolio_id = ? AND d.date = ?
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query deltas: %w", err)
	}
	defer rows.Close()

	deltas := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var delta float64
		if err := rows.Scan(&id, &delta); err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		deltas[id] = delta
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deltas: %w", err)
	}

	return deltas, nil
}

// Service refreshes stored deltas from the provider.
type Service struct {
	provider Provider
	repo     *Repository
	log      zerolog.Logger
}

// NewService creates a new greeks service. Provider may be nil, in which
// case refreshes are no-ops and delta adjustment stays disabled.
func NewService(provider Provider, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
		log:      log.With().Str("service", "greeks").Logger(),
	}
}

// RefreshPortfolio fetches and stores deltas for a portfolio's option
// positions. Missing deltas and provider errors degrade to "no delta" with
// a log line; the method only errors on storage failures.
func (s *Service) RefreshPortfolio(ctx context.Context, positions []domain.Position, date string) error {
	if s.provider == nil {
		s.log.Debug().Msg("No greeks provider configured, delta adjustment disabled")
		return nil
	}

	for _, pos := range positions {
		if !pos.Variant.IsOption() {
			continue
		}

		delta, ok, err := s.provider.Delta(ctx, pos)
		if err != nil {
			s.log.Warn().Err(err).Int64("position_id", pos.ID).Msg("Greeks provider failed, position stays unadjusted")
			continue
		}
		if !ok {
			s.log.Debug().Int64("position_id", pos.ID).Msg("No delta available for position")
			continue
		}

		if err := s.repo.UpsertDelta(pos.ID, date, delta); err != nil {
			return err
		}
	}
	return nil
}
