package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/riskcore/internal/database"
	"github.com/aristath/riskcore/internal/modules/correlation"
	"github.com/aristath/riskcore/internal/modules/exposure"
	"github.com/aristath/riskcore/internal/modules/quality"
	"github.com/aristath/riskcore/internal/modules/stress"
	"github.com/aristath/riskcore/internal/orchestrator"
)

// BatchRunner triggers a batch run. Satisfied by orchestrator.Service.
type BatchRunner interface {
	RunBatch(ctx context.Context, asOf time.Time) (*orchestrator.BatchResult, error)
}

// SymbolSource supplies the symbols the quality endpoint validates.
type SymbolSource interface {
	GetActiveSymbols() ([]string, error)
}

// QualityValidator scores data quality for a symbol set.
type QualityValidator interface {
	Validate(symbols []string, asOf time.Time) quality.Report
}

// Handlers holds the API endpoint implementations.
type Handlers struct {
	batch       BatchRunner
	runs        *orchestrator.Repository
	quality     QualityValidator
	symbols     SymbolSource
	exposures   *exposure.Repository
	stress      *stress.Repository
	correlation *correlation.Repository
	databases   map[string]*database.DB
	startupTime time.Time
	log         zerolog.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(
	batch BatchRunner,
	runs *orchestrator.Repository,
	validator QualityValidator,
	symbols SymbolSource,
	exposures *exposure.Repository,
	stressRepo *stress.Repository,
	correlationRepo *correlation.Repository,
	databases map[string]*database.DB,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		batch:       batch,
		runs:        runs,
		quality:     validator,
		symbols:     symbols,
		exposures:   exposures,
		stress:      stressRepo,
		correlation: correlationRepo,
		databases:   databases,
		startupTime: time.Now(),
		log:         log.With().Str("component", "handlers").Logger(),
	}
}

// HandleSystemStats reports process uptime, host CPU and memory usage, and
// database file sizes.
func (h *Handlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memory_used_percent"] = vm.UsedPercent
		stats["memory_total_mb"] = vm.Total / 1024 / 1024
	}

	dbSizes := make(map[string]int64, len(h.databases))
	for name, db := range h.databases {
		if info, err := os.Stat(db.Path()); err == nil {
			dbSizes[name] = info.Size()
		}
	}
	stats["database_bytes"] = dbSizes

	writeJSON(w, http.StatusOK, stats)
}

// HandleLatestRun returns the most recent batch run with its job rows.
func (h *Handlers) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetLatestRun()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no batch runs recorded yet")
		return
	}
	h.writeRunDetail(w, run)
}

// HandleRunDetail returns one batch run with its job rows.
func (h *Handlers) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.runs.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "unknown run id")
		return
	}
	h.writeRunDetail(w, run)
}

func (h *Handlers) writeRunDetail(w http.ResponseWriter, run *orchestrator.RunRecord) {
	jobs, err := h.runs.GetRunJobs(run.RunID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":  run,
		"jobs": jobs,
	})
}

// HandleTriggerBatch starts a batch run in the background for the date in
// the optional "date" query parameter (default: yesterday). Responds 202
// immediately; progress is visible through the run endpoints.
func (h *Handlers) HandleTriggerBatch(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().AddDate(0, 0, -1)
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if _, err := h.batch.RunBatch(ctx, asOf); err != nil {
			h.log.Error().Err(err).Msg("Manually triggered batch failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"date":   asOf.Format("2006-01-02"),
	})
}

// HandleQualityReport validates the current symbol universe and returns
// the structured report.
func (h *Handlers) HandleQualityReport(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.symbols.GetActiveSymbols()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report := h.quality.Validate(symbols, time.Now())
	writeJSON(w, http.StatusOK, report)
}

// HandleCorrelationSummary returns the latest matrix summary on or before
// the optional "date" query parameter.
func (h *Handlers) HandleCorrelationSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	matrix, err := h.correlation.LoadLatestMatrix(date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if matrix == nil {
		writeError(w, http.StatusNotFound, "no correlation matrix computed yet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"factor_ids": matrix.FactorIDs(),
		"summary":    matrix.Summary(),
	})
}

// HandlePortfolioExposures returns the persisted factor exposures for a
// portfolio and date (query parameter "date", default today).
func (h *Handlers) HandlePortfolioExposures(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := parsePortfolioID(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	exposures, err := h.exposures.GetPortfolioExposures(portfolioID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([]exposure.PortfolioFactorExposure, 0, len(exposures))
	for _, row := range exposures {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].FactorID < rows[j].FactorID })

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"date":         date,
		"exposures":    rows,
	})
}

// HandlePortfolioStress returns the persisted stress results for a
// portfolio and date (query parameter "date", default today).
func (h *Handlers) HandlePortfolioStress(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := parsePortfolioID(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	results, err := h.stress.GetResults(portfolioID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"date":         date,
		"results":      results,
	})
}

func parsePortfolioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "portfolioID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "portfolioID must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
