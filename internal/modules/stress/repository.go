package stress

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/riskcore/internal/database"
	"github.com/rs/zerolog"
)

// Repository handles scenario and stress result persistence (risk.db).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new stress repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "stress").Logger(),
	}
}

// SeedScenarios upserts the catalog scenarios by id. Scenarios removed from
// the catalog are deactivated, not deleted, so historical results keep a
// resolvable scenario row.
func (r *Repository) SeedScenarios(scenarios []Scenario) error {
	now := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE stress_test_scenario SET active = 0, updated_at = ?`, now); err != nil {
			return fmt.Errorf("failed to deactivate scenarios: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO stress_test_scenario (scenario_id, name, category,
				severity, shocks, active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(scenario_id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				severity = excluded.severity,
				shocks = excluded.shocks,
				active = excluded.active,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare scenario upsert: %w", err)
		}
		defer stmt.Close()

		for _, sc := range scenarios {
			shocks, err := json.Marshal(sc.Shocks)
			if err != nil {
				return fmt.Errorf("failed to encode shocks for %s: %w", sc.ID, err)
			}
			active := 0
			if sc.IsActive() {
				active = 1
			}
			if _, err := stmt.Exec(sc.ID, sc.Name, sc.Category, sc.Severity,
				string(shocks), active, now); err != nil {
				return fmt.Errorf("failed to upsert scenario %s: %w", sc.ID, err)
			}
		}
		return nil
	})
}

// GetActiveScenarios returns all active scenarios ordered by id.
func (r *Repository) GetActiveScenarios() ([]Scenario, error) {
	rows, err := r.db.Query(`
		SELECT scenario_id, name, category, severity, shocks
		FROM stress_test_scenario WHERE active = 1 ORDER BY scenario_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []Scenario
	for rows.Next() {
		var sc Scenario
		var shocks string
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Category, &sc.Severity, &shocks); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		if err := json.Unmarshal([]byte(shocks), &sc.Shocks); err != nil {
			return nil, fmt.Errorf("failed to decode shocks for %s: %w", sc.ID, err)
		}
		scenarios = append(scenarios, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}

	return scenarios, nil
}

// SaveResults replaces the full result set for one (portfolio, date) in a
// single transaction. Re-running a day never leaves results from a stale
// scenario catalog behind.
func (r *Repository) SaveResults(portfolioID int64, date string, results []ScenarioResult) error {
	now := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			DELETE FROM stress_test_result
			WHERE portfolio_id = ? AND calculation_date = ?
		`, portfolioID, date)
		if err != nil {
			return fmt.Errorf("failed to clear stress results: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO stress_test_result (portfolio_id, scenario_id,
				calculation_date, direct_pnl, correlated_pnl,
				correlation_effect, breakdown, loss_cap_applied,
				loss_cap_scale, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare stress result insert: %w", err)
		}
		defer stmt.Close()

		for _, res := range results {
			breakdown, err := json.Marshal(res.Breakdown)
			if err != nil {
				return fmt.Errorf("failed to encode breakdown for %s: %w", res.ScenarioID, err)
			}
			capped := 0
			if res.LossCapApplied {
				capped = 1
			}
			_, err = stmt.Exec(portfolioID, res.ScenarioID, date,
				res.DirectPnL, res.CorrelatedPnL, res.CorrelationEffect,
				string(breakdown), capped, res.LossCapScale, now)
			if err != nil {
				return fmt.Errorf("failed to insert stress result %s: %w", res.ScenarioID, err)
			}
		}
		return nil
	})
}

// GetResults returns the persisted results for one (portfolio, date),
// ordered by scenario id.
func (r *Repository) GetResults(portfolioID int64, date string) ([]ScenarioResult, error) {
	rows, err := r.db.Query(`
		SELECT scenario_id, direct_pnl, correlated_pnl, correlation_effect,
			breakdown, loss_cap_applied, loss_cap_scale
		FROM stress_test_result
		WHERE portfolio_id = ? AND calculation_date = ?
		ORDER BY scenario_id
	`, portfolioID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query stress results: %w", err)
	}
	defer rows.Close()

	var results []ScenarioResult
	for rows.Next() {
		res := ScenarioResult{PortfolioID: portfolioID, Date: date}
		var breakdown string
		var capped int
		err := rows.Scan(&res.ScenarioID, &res.DirectPnL, &res.CorrelatedPnL,
			&res.CorrelationEffect, &breakdown, &capped, &res.LossCapScale)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stress result: %w", err)
		}
		if err := json.Unmarshal([]byte(breakdown), &res.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown for %s: %w", res.ScenarioID, err)
		}
		res.LossCapApplied = capped == 1
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stress results: %w", err)
	}

	return results, nil
}
