// Package exposure implements the factor exposure engine: per-position OLS
// betas against factor return series, outlier capping, and signed
// exposure-weighted aggregation to portfolio level.
package exposure

import (
	"math"

	"github.com/aristath/riskcore/pkg/formulas"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// BetaCapLimit bounds every computed beta. Outlier slopes from noisy or
// short samples are clamped, not rejected.
const BetaCapLimit = 5.0

// MinRegressionDays is the overlap below which a fit is flagged
// limited_history. The fit still runs; only the flag changes.
const MinRegressionDays = 60

// minFitObservations is the hard floor for an OLS fit: below this the
// pair degrades to beta 0.
const minFitObservations = 3

// RegressionResult holds one (position, factor) OLS fit.
type RegressionResult struct {
	Beta     float64
	Alpha    float64
	RSquared float64
	PValue   float64
	StdError float64
	N        int
	Capped   bool // true when the raw slope exceeded BetaCapLimit
}

// Regress fits y = alpha + beta*x by OLS and derives R², the slope
// standard error, and the two-sided p-value of the slope. The returned
// beta is clamped to ±BetaCapLimit.
//
// A numerically unusable sample (too short, zero variance in x, or a
// non-finite fit) returns ok=false; callers degrade that pair to beta 0.
func Regress(x, y []float64) (RegressionResult, bool) {
	n := len(x)
	if n != len(y) || n < minFitObservations {
		return RegressionResult{N: n}, false
	}

	// A singular design matrix (constant x) has no defined slope.
	xMean := stat.Mean(x, nil)
	ssx := 0.0
	for _, v := range x {
		d := v - xMean
		ssx += d * d
	}
	if ssx == 0 {
		return RegressionResult{N: n}, false
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return RegressionResult{N: n}, false
	}

	r2 := stat.RSquared(x, y, nil, alpha, beta)
	if math.IsNaN(r2) || r2 < 0 {
		r2 = 0
	}

	// Residual variance with n-2 degrees of freedom
	sse := 0.0
	for i := range x {
		resid := y[i] - (alpha + beta*x[i])
		sse += resid * resid
	}
	dof := float64(n - 2)
	stdError := 0.0
	pValue := 1.0
	if dof > 0 {
		stdError = math.Sqrt(sse / dof / ssx)
		if stdError > 0 {
			t := math.Abs(beta / stdError)
			dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
			pValue = 2 * dist.Survival(t)
		} else {
			// Perfect fit: slope is exact
			pValue = 0
		}
	}

	result := RegressionResult{
		Beta:     formulas.Clamp(beta, BetaCapLimit),
		Alpha:    alpha,
		RSquared: r2,
		PValue:   pValue,
		StdError: stdError,
		N:        n,
	}
	result.Capped = result.Beta != beta
	return result, true
}
