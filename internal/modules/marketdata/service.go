package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReturnWindowCalendarDays is the rolling fetch window: roughly 282
// calendar days covers at least 252 trading days.
const ReturnWindowCalendarDays = 282

// SyncService refreshes the local price store from the external provider.
type SyncService struct {
	provider Provider
	repo     *PriceRepository
	retry    RetryConfig
	log      zerolog.Logger
}

// NewSyncService creates a new market data sync service
func NewSyncService(provider Provider, repo *PriceRepository, log zerolog.Logger) *SyncService {
	return &SyncService{
		provider: provider,
		repo:     repo,
		retry:    DefaultRetryConfig,
		log:      log.With().Str("service", "marketdata_sync").Logger(),
	}
}

// SyncResult reports the outcome of a refresh across symbols.
type SyncResult struct {
	Synced int
	Failed int
	Errors map[string]string // symbol -> error text
}

// RefreshSymbols fetches and stores the rolling price window for each
// symbol. Transient provider errors retry with bounded exponential backoff;
// a symbol that still fails is recorded and skipped, never aborting the
// remaining symbols.
func (s *SyncService) RefreshSymbols(ctx context.Context, symbols []string, asOf time.Time) SyncResult {
	result := SyncResult{Errors: make(map[string]string)}
	from := asOf.AddDate(0, 0, -ReturnWindowCalendarDays)

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			// Cancellation between symbols; already-stored symbols stay committed
			result.Errors[symbol] = err.Error()
			result.Failed++
			continue
		}

		err := RetryWithBackoff(ctx, s.retry, func() error {
			closes, err := s.provider.FetchDailyCloses(ctx, symbol, from, asOf)
			if err != nil {
				return fmt.Errorf("fetch failed for %s: %w", symbol, err)
			}
			if len(closes) == 0 {
				// Nothing to store; not a transient failure, don't retry
				return nil
			}
			return s.repo.UpsertCloses(symbol, closes)
		})
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price refresh failed after retries")
			result.Errors[symbol] = err.Error()
			result.Failed++
			continue
		}
		result.Synced++
	}

	s.log.Info().
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Msg("Price refresh finished")
	return result
}

// LoadReturnSeries loads the stored rolling window for a symbol and
// converts it to a daily return series.
func (s *SyncService) LoadReturnSeries(symbol string, asOf time.Time) (ReturnSeries, error) {
	from := asOf.AddDate(0, 0, -ReturnWindowCalendarDays)
	closes, err := s.repo.GetCloses(symbol, from, asOf)
	if err != nil {
		return ReturnSeries{}, err
	}
	return BuildReturnSeries(closes), nil
}
