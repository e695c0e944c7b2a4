package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/authz"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
)

// UserHandler covers the admin-only account management endpoints.
type UserHandler struct {
	users  repository.UserRepository
	logger zerolog.Logger
}

func NewUserHandler(users repository.UserRepository, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list users")
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	var req struct {
		Roles []models.UserRole `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if len(req.Roles) == 0 || !models.IsValidRoleList(models.NormalizeRoles(req.Roles)) {
		writeError(w, http.StatusBadRequest, "roles must be a non-empty list of viewer, operator or admin")
		return
	}

	user, err := h.users.UpdateUserRoles(r.Context(), userID, req.Roles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to update roles")
		writeError(w, http.StatusInternalServerError, "failed to update roles")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if requester, ok := authz.UserIDFromRequest(r); ok && requester == userID {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := h.users.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to delete user")
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
