package stress

// LossCapFraction bounds any projected loss to this fraction of portfolio
// market value. A projection below -99% of the book is economically
// impossible; the cap is a reported policy, never a silent clamp.
const LossCapFraction = 0.99

// FactorContribution is the per-factor P&L breakdown of one scenario run.
type FactorContribution struct {
	FactorID       int64   `json:"factor_id"`
	FactorName     string  `json:"factor_name"`
	Beta           float64 `json:"beta"`
	DirectShock    float64 `json:"direct_shock"`    // 0 when the factor is not shocked
	EffectiveShock float64 `json:"effective_shock"` // correlation-propagated shock
	DirectPnL      float64 `json:"direct_pnl"`
	CorrelatedPnL  float64 `json:"correlated_pnl"`
}

// ScenarioResult is the outcome of one scenario against one portfolio.
type ScenarioResult struct {
	PortfolioID       int64                `json:"portfolio_id"`
	ScenarioID        string               `json:"scenario_id"`
	Date              string               `json:"date"`
	DirectPnL         float64              `json:"direct_pnl"`
	CorrelatedPnL     float64              `json:"correlated_pnl"`
	CorrelationEffect float64              `json:"correlation_effect"`
	Breakdown         []FactorContribution `json:"breakdown"`
	LossCapApplied    bool                 `json:"loss_cap_applied"`
	LossCapScale      float64              `json:"loss_cap_scale"`
	MissingFactors    []string             `json:"missing_factors,omitempty"` // shocked factors unknown to the catalog or without direct exposure
}

// RunSummary aggregates a comprehensive run across scenarios.
type RunSummary struct {
	PortfolioID           int64   `json:"portfolio_id"`
	Date                  string  `json:"date"`
	Scenarios             int     `json:"scenarios"`
	WorstPnL              float64 `json:"worst_pnl"`
	WorstScenarioID       string  `json:"worst_scenario_id"`
	BestPnL               float64 `json:"best_pnl"`
	BestScenarioID        string  `json:"best_scenario_id"`
	MeanPnL               float64 `json:"mean_pnl"`
	MedianPnL             float64 `json:"median_pnl"`
	StdPnL                float64 `json:"std_pnl"`
	Wins                  int     `json:"wins"`
	Losses                int     `json:"losses"`
	MeanCorrelationEffect float64 `json:"mean_correlation_effect"`
	LossCapsApplied       int     `json:"loss_caps_applied"`
}
