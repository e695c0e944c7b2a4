package handlers

import (
	"net/http"

	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
)

type StatsHandler struct {
	repo   repository.JobRepository
	logger zerolog.Logger
}

func NewStatsHandler(repo repository.JobRepository, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "stats").Logger(),
	}
}

// ExecutionStats returns totals plus a per-day breakdown for the dashboard.
func (h *StatsHandler) ExecutionStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	stats, err := h.repo.ExecutionStats(r.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get execution stats")
		writeError(w, http.StatusInternalServerError, "failed to get execution stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// JobStats returns every job annotated with its run history aggregates.
func (h *StatsHandler) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.ListJobStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get job stats")
		writeError(w, http.StatusInternalServerError, "failed to get job stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
