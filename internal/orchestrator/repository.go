package orchestrator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository persists batch run history (jobs.db).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new orchestrator repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orchestrator").Logger(),
	}
}

// CreateRun inserts the run header in the running state.
func (r *Repository) CreateRun(runID string, startedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO batch_runs (run_id, started_at, status)
		VALUES (?, ?, ?)
	`, runID, startedAt.Unix(), RunRunning)
	if err != nil {
		return fmt.Errorf("failed to create batch run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state and counters of a run.
func (r *Repository) FinishRun(runID, status string, portfoliosTotal, portfoliosFailed, jobsTotal, jobsFailed int) error {
	_, err := r.db.Exec(`
		UPDATE batch_runs
		SET finished_at = ?, status = ?, portfolios_total = ?,
			portfolios_failed = ?, jobs_total = ?, jobs_failed = ?
		WHERE run_id = ?
	`, time.Now().Unix(), status, portfoliosTotal, portfoliosFailed,
		jobsTotal, jobsFailed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish batch run: %w", err)
	}
	return nil
}

// MarkJobRunning upserts a job row in the running state.
func (r *Repository) MarkJobRunning(runID string, portfolioID int64, jobName string) error {
	_, err := r.db.Exec(`
		INSERT INTO batch_jobs (run_id, portfolio_id, job_name, status, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, portfolio_id, job_name) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			error = NULL,
			finished_at = NULL
	`, runID, portfolioID, jobName, JobRunning, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

// FinishJob records a job's terminal status and optional error text.
func (r *Repository) FinishJob(runID string, portfolioID int64, jobName, status, errText string) error {
	var errVal interface{}
	if errText != "" {
		errVal = errText
	}
	_, err := r.db.Exec(`
		INSERT INTO batch_jobs (run_id, portfolio_id, job_name, status, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, portfolio_id, job_name) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			finished_at = excluded.finished_at
	`, runID, portfolioID, jobName, status, errVal, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// GetRun returns a run header, or nil when the run is unknown.
func (r *Repository) GetRun(runID string) (*RunRecord, error) {
	var rec RunRecord
	var started int64
	var finished sql.NullInt64
	err := r.db.QueryRow(`
		SELECT run_id, started_at, finished_at, status, portfolios_total,
			portfolios_failed, jobs_total, jobs_failed
		FROM batch_runs WHERE run_id = ?
	`, runID).Scan(&rec.RunID, &started, &finished, &rec.Status,
		&rec.PortfoliosTotal, &rec.PortfoliosFailed, &rec.JobsTotal, &rec.JobsFailed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query batch run: %w", err)
	}

	rec.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		rec.FinishedAt = &t
	}
	return &rec, nil
}

// GetLatestRun returns the most recently started run, or nil when none
// exists yet.
func (r *Repository) GetLatestRun() (*RunRecord, error) {
	var runID string
	err := r.db.QueryRow(`
		SELECT run_id FROM batch_runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return r.GetRun(runID)
}

// GetRunJobs returns all job rows for a run, global jobs first.
func (r *Repository) GetRunJobs(runID string) ([]JobRecord, error) {
	rows, err := r.db.Query(`
		SELECT run_id, portfolio_id, job_name, status, error, started_at, finished_at
		FROM batch_jobs WHERE run_id = ?
		ORDER BY portfolio_id, job_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var job JobRecord
		var errText sql.NullString
		var started, finished sql.NullInt64
		err := rows.Scan(&job.RunID, &job.PortfolioID, &job.JobName,
			&job.Status, &errText, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch job: %w", err)
		}
		job.Error = errText.String
		if started.Valid {
			t := time.Unix(started.Int64, 0).UTC()
			job.StartedAt = &t
		}
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			job.FinishedAt = &t
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch jobs: %w", err)
	}

	return jobs, nil
}
