package marketdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupPriceRepo(t *testing.T) *PriceRepository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			close REAL NOT NULL,
			fetched_at INTEGER NOT NULL,
			UNIQUE(symbol, date)
		)
	`)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewPriceRepository(db, log)
}

func TestUpsertClosesIdempotent(t *testing.T) {
	repo := setupPriceRepo(t)

	closes := []DailyClose{
		{Date: "2026-01-05", Close: 100},
		{Date: "2026-01-06", Close: 101},
	}
	require.NoError(t, repo.UpsertCloses("SPY", closes))

	// Second refresh revises a close; no duplicate rows appear
	closes[1].Close = 101.5
	require.NoError(t, repo.UpsertCloses("SPY", closes))

	from, _ := time.Parse("2006-01-02", "2026-01-01")
	to, _ := time.Parse("2006-01-02", "2026-01-31")
	got, err := repo.GetCloses("SPY", from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 101.5, got[1].Close)
}

func TestGetClosesRangeAndOrder(t *testing.T) {
	repo := setupPriceRepo(t)

	require.NoError(t, repo.UpsertCloses("SPY", []DailyClose{
		{Date: "2026-01-07", Close: 102},
		{Date: "2026-01-05", Close: 100},
		{Date: "2026-01-06", Close: 101},
		{Date: "2026-02-01", Close: 110},
	}))

	from, _ := time.Parse("2006-01-02", "2026-01-05")
	to, _ := time.Parse("2006-01-02", "2026-01-31")
	got, err := repo.GetCloses("SPY", from, to)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2026-01-05", got[0].Date)
	assert.Equal(t, "2026-01-07", got[2].Date)
}

func TestGetSymbolStats(t *testing.T) {
	repo := setupPriceRepo(t)

	t.Run("unknown symbol", func(t *testing.T) {
		stats, err := repo.GetSymbolStats("NOPE")
		require.NoError(t, err)
		assert.Equal(t, 0, stats.HistoryDays)
		assert.Empty(t, stats.LatestDate)
		assert.Zero(t, stats.LastFetchedAt)
	})

	t.Run("stored symbol", func(t *testing.T) {
		require.NoError(t, repo.UpsertCloses("TLT", []DailyClose{
			{Date: "2026-01-05", Close: 90},
			{Date: "2026-01-06", Close: 91},
		}))

		stats, err := repo.GetSymbolStats("TLT")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.HistoryDays)
		assert.Equal(t, "2026-01-06", stats.LatestDate)
		assert.Greater(t, stats.LastFetchedAt, int64(0))
	})
}
