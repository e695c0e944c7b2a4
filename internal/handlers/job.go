package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/connector"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/railyard/railyard-api/internal/schedule"
	"github.com/rs/zerolog"
)

type JobHandler struct {
	repo       repository.JobRepository
	dispatcher *engine.Dispatcher
	logger     zerolog.Logger
}

type jobRequest struct {
	Name               string          `json:"name"`
	SourceConnectionID string          `json:"source_connection_id"`
	TargetConnectionID string          `json:"target_connection_id"`
	TransformSpec      json.RawMessage `json:"transform_spec"`
	Schedule           *string         `json:"schedule"`
	IsActive           *bool           `json:"is_active"`
}

func NewJobHandler(repo repository.JobRepository, dispatcher *engine.Dispatcher, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.With().Str("handler", "job").Logger(),
	}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if msg, ok := validateJobRequest(req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	job := models.Job{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(req.Name),
		SourceConnectionID: req.SourceConnectionID,
		TargetConnectionID: req.TargetConnectionID,
		TransformSpec:      req.TransformSpec,
		Schedule:           req.Schedule,
		IsActive:           true,
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}

	created, err := h.repo.CreateJob(r.Context(), job)
	if err != nil {
		// The insert guard yields no row when a connection id is unknown.
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "source or target connection does not exist")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.repo.ListJobs(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	job, err := h.repo.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to get job")
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if msg, ok := validateJobRequest(req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	job := models.Job{
		ID:                 jobID,
		Name:               strings.TrimSpace(req.Name),
		SourceConnectionID: req.SourceConnectionID,
		TargetConnectionID: req.TargetConnectionID,
		TransformSpec:      req.TransformSpec,
		Schedule:           req.Schedule,
		IsActive:           true,
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}

	updated, err := h.repo.UpdateJob(r.Context(), job)
	if err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to update job")
		writeError(w, http.StatusInternalServerError, "failed to update job")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.repo.DeleteJob(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, engine.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, repository.ErrJobRunning):
			writeError(w, http.StatusConflict, "job has a running execution")
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to delete job")
			writeError(w, http.StatusInternalServerError, "failed to delete job")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run triggers an execution and acknowledges before it finishes.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	ack, err := h.dispatcher.Trigger(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, engine.ErrJobNotRunnable):
			writeError(w, http.StatusConflict, "job is inactive or already running")
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to trigger job")
			writeError(w, http.StatusInternalServerError, "failed to trigger job")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func validateJobRequest(req jobRequest) (string, bool) {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required", false
	}
	if req.SourceConnectionID == "" || req.TargetConnectionID == "" {
		return "source_connection_id and target_connection_id are required", false
	}
	if req.Schedule != nil && *req.Schedule != "" {
		if err := schedule.Validate(*req.Schedule); err != nil {
			return "invalid schedule: " + err.Error(), false
		}
	}
	if len(req.TransformSpec) > 0 {
		if _, err := connector.ParseTransformSpec(req.TransformSpec); err != nil {
			return "invalid transform_spec: " + err.Error(), false
		}
	}
	return "", true
}
