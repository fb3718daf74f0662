// Package correlation implements the decay-weighted factor correlation
// engine and its bounded symmetric matrix type.
package correlation

import (
	"fmt"
	"math"

	"github.com/aristath/riskcore/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// CorrelationBound clamps every off-diagonal entry. Perfect ±1 factor
// correlations are never trusted; they destabilize shock propagation.
const CorrelationBound = 0.95

// Matrix is a symmetric factor correlation matrix indexed by stable factor
// id. Invariants are enforced at construction: diagonal fixed at 1.0,
// off-diagonal entries clamped to ±CorrelationBound, symmetric by storage.
type Matrix struct {
	factorIDs []int64
	index     map[int64]int
	data      *mat.SymDense
}

// NewMatrix creates an identity correlation matrix over the given factors.
func NewMatrix(factorIDs []int64) *Matrix {
	n := len(factorIDs)
	m := &Matrix{
		factorIDs: append([]int64(nil), factorIDs...),
		index:     make(map[int64]int, n),
		data:      mat.NewSymDense(n, nil),
	}
	for i, id := range factorIDs {
		m.index[id] = i
		m.data.SetSym(i, i, 1.0)
	}
	return m
}

// Set stores the correlation for a factor pair, clamped to the bound.
// Setting a diagonal entry is a no-op: the diagonal is fixed at 1.0.
func (m *Matrix) Set(factorA, factorB int64, corr float64) error {
	i, ok := m.index[factorA]
	if !ok {
		return fmt.Errorf("unknown factor id %d", factorA)
	}
	j, ok := m.index[factorB]
	if !ok {
		return fmt.Errorf("unknown factor id %d", factorB)
	}
	if i == j {
		return nil
	}
	m.data.SetSym(i, j, formulas.Clamp(corr, CorrelationBound))
	return nil
}

// Get returns the correlation between two factors. Unknown factors
// correlate at 0 with everything; a factor correlates at 1 with itself.
func (m *Matrix) Get(factorA, factorB int64) float64 {
	if factorA == factorB {
		return 1.0
	}
	i, ok := m.index[factorA]
	if !ok {
		return 0
	}
	j, ok := m.index[factorB]
	if !ok {
		return 0
	}
	return m.data.At(i, j)
}

// FactorIDs returns the factor ids spanning the matrix.
func (m *Matrix) FactorIDs() []int64 {
	return append([]int64(nil), m.factorIDs...)
}

// Size returns the matrix dimension.
func (m *Matrix) Size() int {
	return len(m.factorIDs)
}

// SummaryStats summarizes the off-diagonal entries for sanity logging.
type SummaryStats struct {
	Mean float64
	Min  float64
	Max  float64
	Std  float64
}

// Summary computes off-diagonal summary statistics.
func (m *Matrix) Summary() SummaryStats {
	var offDiag []float64
	n := m.Size()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			offDiag = append(offDiag, m.data.At(i, j))
		}
	}
	if len(offDiag) == 0 {
		return SummaryStats{}
	}

	stats := SummaryStats{
		Mean: formulas.Mean(offDiag),
		Min:  math.Inf(1),
		Max:  math.Inf(-1),
		Std:  formulas.StdDev(offDiag),
	}
	for _, v := range offDiag {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	return stats
}

// snapshot is the msgpack-encodable form of a matrix.
type snapshot struct {
	FactorIDs []int64     `msgpack:"factor_ids"`
	Rows      [][]float64 `msgpack:"rows"`
}

// toSnapshot flattens the matrix for cache encoding.
func (m *Matrix) toSnapshot() snapshot {
	n := m.Size()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = m.data.At(i, j)
		}
	}
	return snapshot{FactorIDs: m.FactorIDs(), Rows: rows}
}

// fromSnapshot rebuilds a matrix, re-enforcing construction invariants.
func fromSnapshot(snap snapshot) (*Matrix, error) {
	n := len(snap.FactorIDs)
	if len(snap.Rows) != n {
		return nil, fmt.Errorf("corrupt matrix snapshot: %d factors, %d rows", n, len(snap.Rows))
	}
	m := NewMatrix(snap.FactorIDs)
	for i := 0; i < n; i++ {
		if len(snap.Rows[i]) != n {
			return nil, fmt.Errorf("corrupt matrix snapshot: row %d has %d columns", i, len(snap.Rows[i]))
		}
		for j := i + 1; j < n; j++ {
			if err := m.Set(snap.FactorIDs[i], snap.FactorIDs[j], snap.Rows[i][j]); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
