package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/pkg/logger"
)

// MaxListLimit caps ?limit on list endpoints.
const MaxListLimit = 500

// RunReader reads persisted runs. *audit.Repository satisfies it.
type RunReader interface {
	ListRuns(ctx context.Context, kind string, limit int) ([]audit.RunRecord, error)
	GetRun(ctx context.Context, id string) (*audit.RunRecord, error)
}

// RunHandler serves persisted evaluation, backtest and stability runs
// ⭐ SSOT: 실행 결과 조회 API는 이 구조체에서만 (읽기 전용)
type RunHandler struct {
	runs   RunReader
	logger *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunReader, log *logger.Logger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: log,
	}
}

// ListRunsResponse is the list payload.
type ListRunsResponse struct {
	Kind  string            `json:"kind,omitempty"`
	Count int               `json:"count"`
	Runs  []audit.RunRecord `json:"runs"`
}

// ListRuns returns the most recent runs without payloads
// GET /api/runs?kind=backtest&limit=20
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind := q.Get("kind")
	switch kind {
	case "", audit.KindEvaluate, audit.KindBacktest, audit.KindStability:
	default:
		respondError(w, http.StatusBadRequest, "Invalid 'kind' (expected evaluate, backtest or stability)")
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
			return
		}
		if n > MaxListLimit {
			n = MaxListLimit
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), kind, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []audit.RunRecord{}
	}

	respondJSON(w, http.StatusOK, ListRunsResponse{
		Kind:  kind,
		Count: len(runs),
		Runs:  runs,
	})
}

// GetRun returns one run with its full payload
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, audit.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", id).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}
