package handlers

import (
	"net/http"

	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
)

type LogHandler struct {
	logs   repository.LogRepository
	logger zerolog.Logger
}

func NewLogHandler(logs repository.LogRepository, logger zerolog.Logger) *LogHandler {
	return &LogHandler{
		logs:   logs,
		logger: logger.With().Str("handler", "log").Logger(),
	}
}

func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.LogFilter{
		JobID:       r.URL.Query().Get("job_id"),
		ExecutionID: r.URL.Query().Get("execution_id"),
		Level:       r.URL.Query().Get("level"),
		Limit:       queryInt(r, "limit", 0),
		Offset:      queryInt(r, "offset", 0),
	}

	entries, err := h.logs.ListLogs(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list logs")
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
