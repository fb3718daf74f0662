// Package stress implements the stress scenario engine: configured factor
// shocks propagated directly and through the factor correlation matrix,
// with a loss-cap safeguard.
package stress

import (
	"fmt"
	"os"

	"github.com/aristath/riskcore/internal/domain"
	"gopkg.in/yaml.v3"
)

// Valid scenario categories.
var validCategories = map[string]bool{
	"market":          true,
	"rates":           true,
	"sector-rotation": true,
	"volatility":      true,
	"historical":      true,
}

// Scenario is one configured stress scenario.
type Scenario struct {
	ID       string             `yaml:"id" json:"id"`
	Name     string             `yaml:"name" json:"name"`
	Category string             `yaml:"category" json:"category"`
	Severity string             `yaml:"severity" json:"severity"`
	Shocks   map[string]float64 `yaml:"shocks" json:"shocks"` // factor name -> magnitude
	Active   *bool              `yaml:"active" json:"-"`      // defaults to true
}

// IsActive reports whether the scenario is enabled.
func (s Scenario) IsActive() bool {
	return s.Active == nil || *s.Active
}

// catalogFile is the on-disk catalog shape: scenarios grouped by category.
type catalogFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadCatalog reads and validates the scenario catalog YAML. A malformed
// entry returns a ConfigurationError; the caller records it as a stress
// stage failure without touching other stages.
func LoadCatalog(path string) ([]Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, &domain.ConfigurationError{
			Entry:  path,
			Reason: fmt.Sprintf("invalid YAML: %v", err),
		}
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		entry := fmt.Sprintf("scenarios[%d]", i)
		if sc.ID != "" {
			entry = fmt.Sprintf("scenario %q", sc.ID)
		}

		if sc.ID == "" {
			return nil, &domain.ConfigurationError{Entry: entry, Reason: "missing id"}
		}
		if seen[sc.ID] {
			return nil, &domain.ConfigurationError{Entry: entry, Reason: "duplicate id"}
		}
		seen[sc.ID] = true
		if sc.Name == "" {
			return nil, &domain.ConfigurationError{Entry: entry, Reason: "missing name"}
		}
		if !validCategories[sc.Category] {
			return nil, &domain.ConfigurationError{
				Entry:  entry,
				Reason: fmt.Sprintf("unknown category %q", sc.Category),
			}
		}
		if sc.Severity == "" {
			return nil, &domain.ConfigurationError{Entry: entry, Reason: "missing severity"}
		}
		if len(sc.Shocks) == 0 {
			return nil, &domain.ConfigurationError{Entry: entry, Reason: "empty shock map"}
		}
		for factor, shock := range sc.Shocks {
			if factor == "" {
				return nil, &domain.ConfigurationError{Entry: entry, Reason: "empty factor name in shock map"}
			}
			if shock < -1 || shock > 1 {
				return nil, &domain.ConfigurationError{
					Entry:  entry,
					Reason: fmt.Sprintf("shock %.2f for %q outside [-1, 1]", shock, factor),
				}
			}
		}
	}

	return file.Scenarios, nil
}
