package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
)

type ExecutionHandler struct {
	repo   repository.JobRepository
	logs   repository.LogRepository
	logger zerolog.Logger
}

func NewExecutionHandler(repo repository.JobRepository, logs repository.LogRepository, logger zerolog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		repo:   repo,
		logs:   logs,
		logger: logger.With().Str("handler", "execution").Logger(),
	}
}

func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.ExecutionFilter{
		JobID:  r.URL.Query().Get("job_id"),
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	executions, err := h.repo.ListExecutions(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list executions")
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionID"]
	execution, err := h.repo.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.Error().Err(err).Str("execution_id", executionID).Msg("failed to get execution")
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

// Logs returns the audit trail of one execution in chronological order.
func (h *ExecutionHandler) Logs(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionID"]
	if _, err := h.repo.GetExecution(r.Context(), executionID); err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.Error().Err(err).Str("execution_id", executionID).Msg("failed to get execution")
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	entries, err := h.logs.ListLogs(r.Context(), repository.LogFilter{
		ExecutionID: executionID,
		Limit:       queryInt(r, "limit", 0),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("execution_id", executionID).Msg("failed to list execution logs")
		writeError(w, http.StatusInternalServerError, "failed to list execution logs")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
