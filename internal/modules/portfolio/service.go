package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Service coordinates portfolio aggregation: it reads active positions,
// computes the signed exposure summary, and persists the daily snapshot.
type Service struct {
	repo         *Repository
	positionRepo *PositionRepository
	log          zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(repo *Repository, positionRepo *PositionRepository, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		positionRepo: positionRepo,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// SnapshotPortfolio computes and persists the exposure snapshot for one
// portfolio and date, returning the computed summary.
func (s *Service) SnapshotPortfolio(portfolioID int64, date string) (ExposureSummary, error) {
	positions, err := s.positionRepo.GetActiveByPortfolio(portfolioID)
	if err != nil {
		return ExposureSummary{}, fmt.Errorf("failed to load positions: %w", err)
	}

	summary := ComputeExposureSummary(positions)

	snap := Snapshot{PortfolioID: portfolioID, Date: date, Summary: summary}
	if err := s.repo.UpsertSnapshot(snap); err != nil {
		return summary, err
	}

	s.log.Debug().
		Int64("portfolio_id", portfolioID).
		Str("date", date).
		Float64("gross", summary.GrossExposure).
		Float64("net", summary.NetExposure).
		Int("positions", summary.PositionCount).
		Msg("Portfolio snapshot stored")
	return summary, nil
}
