package stress

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskcore/internal/domain"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
scenarios:
  - id: market_down_10
    name: Broad market -10%
    category: market
    severity: moderate
    shocks:
      market: -0.10
  - id: old_scenario
    name: Retired scenario
    category: historical
    severity: mild
    active: false
    shocks:
      market: -0.05
`)

	scenarios, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.Equal(t, "market_down_10", scenarios[0].ID)
	assert.Equal(t, map[string]float64{"market": -0.10}, scenarios[0].Shocks)
	assert.True(t, scenarios[0].IsActive(), "active defaults to true")
	assert.False(t, scenarios[1].IsActive())
}

func TestLoadCatalogValidation(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		reason  string
	}{
		{
			name: "missing id",
			content: `
scenarios:
  - name: No id
    category: market
    severity: mild
    shocks: {market: -0.1}
`,
			reason: "missing id",
		},
		{
			name: "duplicate id",
			content: `
scenarios:
  - {id: dup, name: A, category: market, severity: mild, shocks: {market: -0.1}}
  - {id: dup, name: B, category: market, severity: mild, shocks: {market: -0.2}}
`,
			reason: "duplicate id",
		},
		{
			name: "unknown category",
			content: `
scenarios:
  - {id: x, name: X, category: astrology, severity: mild, shocks: {market: -0.1}}
`,
			reason: "unknown category",
		},
		{
			name: "missing severity",
			content: `
scenarios:
  - {id: x, name: X, category: market, shocks: {market: -0.1}}
`,
			reason: "missing severity",
		},
		{
			name: "empty shock map",
			content: `
scenarios:
  - {id: x, name: X, category: market, severity: mild, shocks: {}}
`,
			reason: "empty shock map",
		},
		{
			name: "shock out of range",
			content: `
scenarios:
  - {id: x, name: X, category: market, severity: mild, shocks: {market: -1.5}}
`,
			reason: "outside [-1, 1]",
		},
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

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
