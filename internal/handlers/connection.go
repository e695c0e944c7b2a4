package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/connector"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
)

type ConnectionHandler struct {
	repo     repository.ConnectionRepository
	registry *connector.Registry
	logger   zerolog.Logger
}

func NewConnectionHandler(repo repository.ConnectionRepository, registry *connector.Registry, logger zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		repo:     repo,
		registry: registry,
		logger:   logger.With().Str("handler", "connection").Logger(),
	}
}

func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	connections, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list connections")
		writeError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}
	writeJSON(w, http.StatusOK, connections)
}

func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("connection_id", id).Msg("failed to get connection")
		writeError(w, http.StatusInternalServerError, "failed to get connection")
		return
	}
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	conn.Password = "" // never echo credentials
	writeJSON(w, http.StatusOK, conn)
}

func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var conn models.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if conn.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	conn.DataFormat = models.NormalizeDataFormat(conn.DataFormat)
	if !h.registry.Supports(conn.DataFormat) {
		writeError(w, http.StatusBadRequest, "unsupported data format: "+conn.DataFormat)
		return
	}

	created, err := h.repo.Create(r.Context(), &conn)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create connection")
		writeError(w, http.StatusInternalServerError, "failed to create connection")
		return
	}
	created.Password = ""
	writeJSON(w, http.StatusCreated, created)
}

func (h *ConnectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var conn models.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	conn.ID = id
	conn.DataFormat = models.NormalizeDataFormat(conn.DataFormat)
	if !h.registry.Supports(conn.DataFormat) {
		writeError(w, http.StatusBadRequest, "unsupported data format: "+conn.DataFormat)
		return
	}

	updated, err := h.repo.Update(r.Context(), &conn)
	if err != nil {
		h.logger.Error().Err(err).Str("connection_id", id).Msg("failed to update connection")
		writeError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	updated.Password = ""
	writeJSON(w, http.StatusOK, updated)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrConnectionInUse) {
			writeError(w, http.StatusConflict, "connection is referenced by a job")
			return
		}
		h.logger.Error().Err(err).Str("connection_id", id).Msg("failed to delete connection")
		writeError(w, http.StatusInternalServerError, "failed to delete connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test probes the connection and records the outcome on its status.
func (h *ConnectionHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("connection_id", id).Msg("failed to get connection")
		writeError(w, http.StatusInternalServerError, "failed to get connection")
		return
	}
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	total, probeErr := h.registry.Probe(r.Context(), *conn)

	status := models.ConnectionStatusValid
	resp := map[string]interface{}{"status": "ok", "record_count": total}
	code := http.StatusOK
	if probeErr != nil {
		status = models.ConnectionStatusInvalid
		resp = map[string]interface{}{"status": "failed", "error": probeErr.Error()}
		code = http.StatusBadRequest
	}

	if err := h.repo.SetStatus(r.Context(), id, status); err != nil {
		h.logger.Error().Err(err).Str("connection_id", id).Msg("failed to record connection status")
		writeError(w, http.StatusInternalServerError, "failed to record connection status")
		return
	}

	writeJSON(w, code, resp)
}

// Formats lists the data formats a connection can declare.
func (h *ConnectionHandler) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"formats": h.registry.Formats()})
}
