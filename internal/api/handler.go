package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/triage"
)

// Handler holds dependencies for API handlers. Datasets and run results
// live in memory for the life of the process.
type Handler struct {
	engine  *engine.Engine
	triage  *triage.Engine
	cache   domain.MetricCache
	bus     domain.EventBus
	version string

	mu       sync.RWMutex
	datasets map[string][]domain.Transaction
	runs     map[string]*domain.RunResult
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, tri *triage.Engine, cache domain.MetricCache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		engine:   eng,
		triage:   tri,
		cache:    cache,
		bus:      bus,
		version:  version,
		datasets: make(map[string][]domain.Transaction),
		runs:     make(map[string]*domain.RunResult),
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /ready, checking attached collaborators.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{}
	ready := true
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			ready = false
		} else {
			checks["cache"] = "ok"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			checks["bus"] = err.Error()
			ready = false
		} else {
			checks["bus"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// DatasetResponse is the response for dataset creation and retrieval.
type DatasetResponse struct {
	DatasetID    string `json:"datasetId"`
	Transactions int    `json:"transactions"`
}

// CreateDataset handles POST /datasets. The body is a JSON array of
// transactions, or CSV when Content-Type is text/csv.
func (h *Handler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var (
		txs []domain.Transaction
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		txs, err = ingest.ReadCSV(r.Body)
	} else {
		txs, err = ingest.ReadJSON(r.Body)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(txs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dataset is empty"})
		return
	}

	id := uuid.New().String()
	h.mu.Lock()
	h.datasets[id] = txs
	h.mu.Unlock()

	slog.Info("dataset created", "dataset_id", id, "transactions", len(txs))
	writeJSON(w, http.StatusCreated, DatasetResponse{DatasetID: id, Transactions: len(txs)})
}

// GetDataset handles GET /datasets/{id}.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	txs, ok := h.datasets[id]
	h.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "dataset not found"})
		return
	}
	writeJSON(w, http.StatusOK, DatasetResponse{DatasetID: id, Transactions: len(txs)})
}

// AnalyzeRequest optionally restricts which transactions are analyzed.
type AnalyzeRequest struct {
	MinAmount float64    `json:"minAmount,omitempty"`
	MaxAmount float64    `json:"maxAmount,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
}

// Analyze handles POST /datasets/{id}/analyze: builds the graph and
// runs the detection engine over it.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	txs, ok := h.datasets[id]
	h.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "dataset not found"})
		return
	}

	var req AnalyzeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
			return
		}
	}
	filter := graph.Filter{MinAmount: req.MinAmount, MaxAmount: req.MaxAmount}
	if req.Start != nil {
		filter.Start = *req.Start
	}
	if req.End != nil {
		filter.End = *req.End
	}

	g, err := graph.Build(txs, filter)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.engine.Run(r.Context(), g)
	if err != nil {
		slog.Error("detection run failed", "dataset_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "detection run failed"})
		return
	}

	h.mu.Lock()
	h.runs[result.ID] = result
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunReport handles GET /runs/{id}/report, rendering the run as
// plain text.
func (h *Handler) GetRunReport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	var buf bytes.Buffer
	if err := report.WriteText(&buf, run); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report rendering failed"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// GetRunRecords handles GET /runs/{id}/records, the flat export form.
func (h *Handler) GetRunRecords(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, report.Records(run))
}

// TriageDecisionGroup pairs a finding with its rule decisions.
type TriageDecisionGroup struct {
	Record    domain.Record     `json:"record"`
	Decisions []triage.Decision `json:"decisions"`
}

// TriageRun handles POST /runs/{id}/triage: evaluates every loaded
// triage rule against every finding of the run.
func (h *Handler) TriageRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	groups := make([]TriageDecisionGroup, 0)
	for _, rec := range report.Records(run) {
		decisions, err := h.triage.EvaluateAll(r.Context(), rec)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "triage evaluation failed"})
			return
		}
		groups = append(groups, TriageDecisionGroup{Record: rec, Decisions: decisions})
	}
	writeJSON(w, http.StatusOK, groups)
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.triage.GetLoadedRules())
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, rule := range h.triage.GetLoadedRules() {
		if rule.ID == id {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
}

// CreateRule handles POST /rules, compiling and loading the rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule triage.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expression is required"})
		return
	}
	rule.Enabled = true

	if err := h.triage.LoadRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	slog.Info("triage rule loaded", "rule_id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadRules handles POST /rules/reload, restoring the builtin set.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.triage.ReloadRules(triage.BuiltinRules()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rules": h.triage.RulesCount()})
}

func (h *Handler) run(id string) (*domain.RunResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	run, ok := h.runs[id]
	return run, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
