package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the risk pipeline. Stage code returns these so the
// orchestrator can distinguish "no input at all" from "degraded but usable"
// without string matching.
var (
	// ErrDataUnavailable means a stage had no input data at all. It aborts
	// that one stage for that one portfolio, never the whole batch.
	ErrDataUnavailable = errors.New("required input data unavailable")

	// ErrInsufficientHistory means the overlapping sample was smaller than
	// the regression minimum. Callers downgrade the quality flag and
	// continue; this never aborts a stage on its own.
	ErrInsufficientHistory = errors.New("insufficient overlapping history")
)

// ConfigurationError reports a malformed declarative catalog entry
// (e.g. a stress scenario missing required fields). It aborts only the
// stage that consumes the catalog.
type ConfigurationError struct {
	Entry  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Entry, e.Reason)
}

// RegressionError reports a numerical failure for a single
// (position, factor) pair. The pair degrades to beta 0; the batch
// continues.
type RegressionError struct {
	PositionID int64
	FactorID   int64
	Reason     string
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("regression failed for position %d / factor %d: %s",
		e.PositionID, e.FactorID, e.Reason)
}
