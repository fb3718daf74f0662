// Package orchestrator runs the nightly batch: a global market refresh and
// correlation job, then bounded-concurrent per-portfolio pipelines. A
// failing portfolio never aborts its siblings; every job outcome is
// recorded in the run history.
package orchestrator

import "time"

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobDegraded  = "degraded"
	JobFailed    = "failed"
	JobSkipped   = "skipped"
)

// Job names. GlobalPortfolioID marks jobs not tied to one portfolio.
const (
	GlobalPortfolioID = 0

	JobMarketRefresh = "market_refresh"
	JobCorrelation   = "correlation"
	JobQuality       = "quality"
	JobSnapshot      = "snapshot"
	JobGreeks        = "greeks"
	JobExposure      = "exposure"
	JobStress        = "stress"
	JobReport        = "report"
)

// RunRecord is one batch run's persisted header.
type RunRecord struct {
	RunID            string     `json:"run_id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	PortfoliosTotal  int        `json:"portfolios_total"`
	PortfoliosFailed int        `json:"portfolios_failed"`
	JobsTotal        int        `json:"jobs_total"`
	JobsFailed       int        `json:"jobs_failed"`
}

// JobRecord is one job's persisted outcome within a run.
type JobRecord struct {
	RunID       string     `json:"run_id"`
	PortfolioID int64      `json:"portfolio_id"`
	JobName     string     `json:"job_name"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// PortfolioOutcome summarizes one portfolio's pipeline within a run.
type PortfolioOutcome struct {
	PortfolioID int64
	Jobs        []JobRecord
	Failed      bool // a required stage failed and later stages were skipped
}

// BatchResult is the in-memory outcome of one full run.
type BatchResult struct {
	RunID      string
	Date       string
	Portfolios []PortfolioOutcome
	JobsTotal  int
	JobsFailed int
}
