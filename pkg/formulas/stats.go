// Package formulas provides shared statistical helpers used across the
// risk pipeline (return series construction, weighted moments, decay weights).
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Median calculates the median of a slice of float64 values.
// The input slice is not modified.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted) // stat.Quantile requires sorted input
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// CalculateReturns converts prices to simple daily percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// DecayWeights returns exponential decay weights for n observations,
// normalized to sum to 1. The last observation (most recent) carries the
// heaviest weight: weight_t ∝ decay^(n-1-t).
func DecayWeights(n int, decay float64) []float64 {
	if n <= 0 {
		return nil
	}
	if decay <= 0 || decay >= 1 {
		// Degenerate decay collapses to equal weighting
		w := make([]float64, n)
		for i := range w {
			w[i] = 1.0 / float64(n)
		}
		return w
	}

	weights := make([]float64, n)
	sum := 0.0
	for t := 0; t < n; t++ {
		w := math.Pow(decay, float64(n-1-t))
		weights[t] = w
		sum += w
	}
	for t := range weights {
		weights[t] /= sum
	}
	return weights
}

// WeightedMean calculates the weighted arithmetic mean.
// Weights are assumed to be non-negative; a zero weight sum returns 0.
func WeightedMean(data, weights []float64) float64 {
	if len(data) == 0 || len(data) != len(weights) {
		return 0
	}
	return stat.Mean(data, weights)
}

// WeightedCovariance calculates the weighted covariance between two series.
func WeightedCovariance(x, y, weights []float64) float64 {
	if len(x) == 0 || len(x) != len(y) || len(x) != len(weights) {
		return 0
	}
	return stat.Covariance(x, y, weights)
}

// WeightedCorrelation calculates the weighted Pearson correlation between
// two series. Returns 0 when either series has zero weighted variance.
func WeightedCorrelation(x, y, weights []float64) float64 {
	if len(x) == 0 || len(x) != len(y) || len(x) != len(weights) {
		return 0
	}
	corr := stat.Correlation(x, y, weights)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0
	}
	return corr
}

// Clamp bounds v to [-limit, limit].
func Clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
