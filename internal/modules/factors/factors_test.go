package factors

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskcore/internal/domain"

	_ "modernc.org/sqlite"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "factors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
factors:
  - name: market
    proxy_symbol: SPY
  - name: volatility
    proxy_symbol: VIXY
    active: false
`)

	factors, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, factors, 2)

	assert.Equal(t, "market", factors[0].Name)
	assert.Equal(t, "SPY", factors[0].ProxySymbol)
	assert.True(t, factors[0].Active, "active defaults to true")
	assert.False(t, factors[1].Active)
}

func TestLoadCatalogValidation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		reason  string
	}{
		{"missing name", "factors:\n  - proxy_symbol: SPY\n", "missing name"},
		{"missing proxy", "factors:\n  - name: market\n", "missing proxy_symbol"},
		{"duplicate name", "factors:\n  - {name: market, proxy_symbol: SPY}\n  - {name: market, proxy_symbol: VOO}\n", "duplicate name"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCatalog(writeCatalog(t, tc.content))
			require.Error(t, err)

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, cfgErr.Reason, tc.reason)
		})
	}
}

func setupFactorRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE factors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			proxy_symbol TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db, log)
}

func TestSeedKeepsStableIDs(t *testing.T) {
	repo := setupFactorRepo(t)

	require.NoError(t, repo.Seed([]domain.Factor{
		{Name: "market", ProxySymbol: "SPY", Active: true},
		{Name: "rates", ProxySymbol: "TLT", Active: true},
	}))

	before, err := repo.GetAllActive()
	require.NoError(t, err)
	require.Len(t, before, 2)

	// Re-seeding with a changed proxy must keep the id stable
	require.NoError(t, repo.Seed([]domain.Factor{
		{Name: "market", ProxySymbol: "VOO", Active: true},
		{Name: "rates", ProxySymbol: "TLT", Active: false},
	}))

	after, err := repo.GetAllActive()
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, "VOO", after[0].ProxySymbol)
}
