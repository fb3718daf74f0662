package exposure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegressPerfectFit(t *testing.T) {
	x := []float64{0.01, -0.02, 0.015, 0.03, -0.01}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 * v
	}

	result, ok := Regress(x, y)
	require.True(t, ok)
	assert.InDelta(t, 2.0, result.Beta, 1e-9)
	assert.InDelta(t, 0.0, result.Alpha, 1e-9)
	assert.InDelta(t, 1.0, result.RSquared, 1e-9)
	assert.InDelta(t, 0.0, result.PValue, 1e-9)
	assert.False(t, result.Capped)
	assert.Equal(t, 5, result.N)
}

func TestRegressNoisyFit(t *testing.T) {
	x := []float64{0.01, -0.02, 0.015, 0.03, -0.01, 0.005, -0.025, 0.02}
	y := []float64{0.012, -0.028, 0.02, 0.041, -0.008, 0.004, -0.039, 0.025}

	result, ok := Regress(x, y)
	require.True(t, ok)
	assert.InDelta(t, 1.37, result.Beta, 0.05)
	assert.Greater(t, result.RSquared, 0.9)
	assert.Less(t, result.PValue, 0.01)
	assert.Greater(t, result.StdError, 0.0)
}

func TestRegressBetaCap(t *testing.T) {
	// Slope of 10 gets clamped to the cap with the flag set
	x := []float64{0.01, -0.02, 0.015, 0.03}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 10 * v
	}

	result, ok := Regress(x, y)
	require.True(t, ok)
	assert.Equal(t, BetaCapLimit, result.Beta)
	assert.True(t, result.Capped)

	for i, v := range x {
		y[i] = -10 * v
	}
	result, ok = Regress(x, y)
	require.True(t, ok)
	assert.Equal(t, -BetaCapLimit, result.Beta)
	assert.True(t, result.Capped)
}

func TestRegressUnusableSamples(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, ok := Regress([]float64{0.01, 0.02}, []float64{0.01, 0.02})
		assert.False(t, ok)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, ok := Regress([]float64{0.01, 0.02, 0.03}, []float64{0.01})
		assert.False(t, ok)
	})

	t.Run("zero variance in x", func(t *testing.T) {
		_, ok := Regress([]float64{0.01, 0.01, 0.01, 0.01}, []float64{0.01, 0.02, 0.03, 0.04})
		assert.False(t, ok)
	})
}
