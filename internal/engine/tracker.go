package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/schedule"
	"github.com/rs/zerolog"
)

// Tracker owns the execution lifecycle: it opens runs against runnable jobs,
// persists progress checkpoints and records terminal outcomes. Every state
// transition is a conditional store update, so concurrent triggers and
// double finishes lose cleanly instead of corrupting state.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "tracker").Logger(),
	}
}

// Begin claims the job and opens a new running execution with zeroed
// counters. ErrJobNotFound when the job does not exist; ErrJobNotRunnable
// when it is inactive or already has a run in flight.
func (t *Tracker) Begin(ctx context.Context, jobID string) (models.Execution, error) {
	job, err := t.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Execution{}, err
	}
	if !job.IsActive {
		return models.Execution{}, errors.Wrapf(ErrJobNotRunnable, "job %s is inactive", jobID)
	}

	now := time.Now().UTC()
	exec := models.Execution{
		ID:          uuid.NewString(),
		JobID:       jobID,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   now,
		HeartbeatAt: now,
	}
	created, err := t.store.BeginExecution(ctx, exec)
	if err != nil {
		return models.Execution{}, err
	}

	t.logger.Info().
		Str("job_id", jobID).
		Str("execution_id", created.ID).
		Msg("execution started")
	return created, nil
}

// Checkpoint persists the current counters and refreshes the heartbeat.
// Checkpoints arriving after the execution turned terminal are dropped
// silently.
func (t *Tracker) Checkpoint(ctx context.Context, executionID string, c models.Counters) error {
	if c.Processed != c.Succeeded+c.Failed {
		return errors.Errorf("inconsistent counters: processed=%d succeeded=%d failed=%d",
			c.Processed, c.Succeeded, c.Failed)
	}
	saved, err := t.store.SaveProgress(ctx, executionID, c, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "save progress")
	}
	if !saved {
		t.logger.Debug().
			Str("execution_id", executionID).
			Msg("dropped checkpoint for terminal execution")
	}
	return nil
}

// Finish moves the execution to a terminal status and mirrors the outcome
// onto the job row, including the next scheduled run when the job has a
// schedule. A second Finish returns ErrAlreadyTerminal.
func (t *Tracker) Finish(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage string) error {
	if !status.Terminal() {
		return errors.Errorf("cannot finish execution with non-terminal status %q", status)
	}

	exec, err := t.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var msg *string
	if status == models.ExecutionStatusFailed && errorMessage != "" {
		msg = &errorMessage
	}
	finished, err := t.store.FinishExecution(ctx, executionID, status, msg, now)
	if err != nil {
		return errors.Wrap(err, "finish execution")
	}
	if !finished {
		return errors.Wrapf(ErrAlreadyTerminal, "execution %s", executionID)
	}

	jobStatus := models.JobStatusCompleted
	if status == models.ExecutionStatusFailed {
		jobStatus = models.JobStatusFailed
	}
	var nextRun *time.Time
	if job, err := t.store.GetJob(ctx, exec.JobID); err == nil && job.Schedule != nil {
		nextRun = schedule.NextRun(*job.Schedule, now)
	}
	if err := t.store.SettleJob(ctx, exec.JobID, jobStatus, nextRun); err != nil {
		return errors.Wrap(err, "settle job")
	}

	t.logger.Info().
		Str("execution_id", executionID).
		Str("job_id", exec.JobID).
		Str("status", string(status)).
		Msg("execution finished")
	return nil
}
