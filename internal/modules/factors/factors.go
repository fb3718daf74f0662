// Package factors manages the static factor catalog: systematic risk
// dimensions proxied by tradable instruments, seeded from a YAML file into
// the factors table.
package factors

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/aristath/riskcore/internal/domain"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// catalogEntry is one factor definition in the YAML catalog.
type catalogEntry struct {
	Name        string `yaml:"name"`
	ProxySymbol string `yaml:"proxy_symbol"`
	Active      *bool  `yaml:"active"` // defaults to true
}

// catalogFile is the on-disk catalog shape.
type catalogFile struct {
	Factors []catalogEntry `yaml:"factors"`
}

// LoadCatalog reads and validates the factor catalog YAML.
func LoadCatalog(path string) ([]domain.Factor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read factor catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse factor catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Factors))
	factors := make([]domain.Factor, 0, len(file.Factors))
	for i, entry := range file.Factors {
		if entry.Name == "" {
			return nil, &domain.ConfigurationError{
				Entry:  fmt.Sprintf("factors[%d]", i),
				Reason: "missing name",
			}
		}
		if entry.ProxySymbol == "" {
			return nil, &domain.ConfigurationError{
				Entry:  fmt.Sprintf("factor %q", entry.Name),
				Reason: "missing proxy_symbol",
			}
		}
		if seen[entry.Name] {
			return nil, &domain.ConfigurationError{
				Entry:  fmt.Sprintf("factor %q", entry.Name),
				Reason: "duplicate name",
			}
		}
		seen[entry.Name] = true

		active := true
		if entry.Active != nil {
			active = *entry.Active
		}
		factors = append(factors, domain.Factor{
			Name:        entry.Name,
			ProxySymbol: entry.ProxySymbol,
			Active:      active,
		})
	}

	return factors, nil
}

// Repository handles factor catalog database operations (market.db).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new factor repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "factors").Logger(),
	}
}

// Seed upserts catalog factors by name. Factor IDs stay stable across
// re-seeds so persisted exposures keep their references.
func (r *Repository) Seed(factors []domain.Factor) error {
	now := time.Now().Unix()
	for _, f := range factors {
		active := 0
		if f.Active {
			active = 1
		}
		_, err := r.db.Exec(`
			INSERT INTO factors (name, proxy_symbol, active, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				proxy_symbol = excluded.proxy_symbol,
				active = excluded.active,
				updated_at = excluded.updated_at
		`, f.Name, f.ProxySymbol, active, now)
		if err != nil {
			return fmt.Errorf("failed to seed factor %q: %w", f.Name, err)
		}
	}
	return nil
}

// GetAllActive returns all active factors ordered by id.
func (r *Repository) GetAllActive() ([]domain.Factor, error) {
	rows, err := r.db.Query(`
		SELECT id, name, proxy_symbol, active
		FROM factors WHERE active = 1 ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query factors: %w", err)
	}
	defer rows.Close()

	var factors []domain.Factor
	for rows.Next() {
		var f domain.Factor
		if err := rows.Scan(&f.ID, &f.Name, &f.ProxySymbol, &f.Active); err != nil {
			return nil, fmt.Errorf("failed to scan factor: %w", err)
		}
		factors = append(factors, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating factors: %w", err)
	}

	return factors, nil
}
