package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixInvariants(t *testing.T) {
	m := NewMatrix([]int64{1, 2, 3})

	t.Run("identity diagonal", func(t *testing.T) {
		for _, id := range []int64{1, 2, 3} {
			assert.Equal(t, 1.0, m.Get(id, id))
		}
	})

	t.Run("symmetry", func(t *testing.T) {
		require.NoError(t, m.Set(1, 2, 0.6))
		assert.Equal(t, 0.6, m.Get(1, 2))
		assert.Equal(t, 0.6, m.Get(2, 1))
	})

	t.Run("off-diagonal clamped to the bound", func(t *testing.T) {
		require.NoError(t, m.Set(1, 3, 0.999))
		assert.Equal(t, CorrelationBound, m.Get(1, 3))

		require.NoError(t, m.Set(2, 3, -0.999))
		assert.Equal(t, -CorrelationBound, m.Get(2, 3))
	})

	t.Run("diagonal set is a no-op", func(t *testing.T) {
		require.NoError(t, m.Set(1, 1, 0.2))
		assert.Equal(t, 1.0, m.Get(1, 1))
	})

	t.Run("unknown factors correlate at 0", func(t *testing.T) {
		assert.Equal(t, 0.0, m.Get(1, 99))
		assert.Equal(t, 0.0, m.Get(99, 1))
		assert.Equal(t, 1.0, m.Get(99, 99), "self-correlation holds even off-matrix")
	})

	t.Run("set rejects unknown factors", func(t *testing.T) {
		assert.Error(t, m.Set(1, 99, 0.5))
	})
}

func TestMatrixSummary(t *testing.T) {
	m := NewMatrix([]int64{1, 2, 3})
	require.NoError(t, m.Set(1, 2, 0.5))
	require.NoError(t, m.Set(1, 3, -0.3))
	require.NoError(t, m.Set(2, 3, 0.1))

	stats := m.Summary()
	assert.InDelta(t, 0.1, stats.Mean, 1e-9)
	assert.Equal(t, -0.3, stats.Min)
	assert.Equal(t, 0.5, stats.Max)

	assert.Equal(t, SummaryStats{}, NewMatrix([]int64{1}).Summary())
}

func TestMatrixSnapshotRoundTrip(t *testing.T) {
	m := NewMatrix([]int64{4, 7, 9})
	require.NoError(t, m.Set(4, 7, 0.42))
	require.NoError(t, m.Set(7, 9, -0.17))

	rebuilt, err := fromSnapshot(m.toSnapshot())
	require.NoError(t, err)

	assert.Equal(t, m.FactorIDs(), rebuilt.FactorIDs())
	for _, a := range m.FactorIDs() {
		for _, b := range m.FactorIDs() {
			assert.InDelta(t, m.Get(a, b), rebuilt.Get(a, b), 1e-12)
		}
	}
}

func TestFromSnapshotCorrupt(t *testing.T) {
	_, err := fromSnapshot(snapshot{
		FactorIDs: []int64{1, 2},
		Rows:      [][]float64{{1, 0}},
	})
	assert.Error(t, err)

	_, err = fromSnapshot(snapshot{
		FactorIDs: []int64{1, 2},
		Rows:      [][]float64{{1}, {0, 1}},
	})
	assert.Error(t, err)
}
