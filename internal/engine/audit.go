package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// Auditor writes the append-only audit trail of an execution: one start
// entry, a progress entry per milestone and exactly one terminal entry,
// plus an error entry when a run aborts. Audit failures are logged and
// swallowed; they must never take a run down.
type Auditor struct {
	sink   LogSink
	logger zerolog.Logger
}

func NewAuditor(sink LogSink, logger zerolog.Logger) *Auditor {
	return &Auditor{
		sink:   sink,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

func (a *Auditor) ExecutionStarted(ctx context.Context, job models.Job, executionID string, totalRecords int64) {
	a.append(ctx, models.LogEntry{
		JobID:       strptr(job.ID),
		ExecutionID: strptr(executionID),
		Level:       models.LogLevelInfo,
		Message:     fmt.Sprintf("execution started for job %q", job.Name),
		Details: details(map[string]any{
			"job_name":      job.Name,
			"total_records": totalRecords,
		}),
	})
}

func (a *Auditor) Milestone(ctx context.Context, jobID, executionID string, c models.Counters, totalRecords int64) {
	percent := int64(0)
	if totalRecords > 0 {
		percent = c.Processed * 100 / totalRecords
	}
	a.append(ctx, models.LogEntry{
		JobID:       strptr(jobID),
		ExecutionID: strptr(executionID),
		Level:       models.LogLevelInfo,
		Message:     fmt.Sprintf("execution progress: %d%%", percent),
		Details: details(map[string]any{
			"records_processed": c.Processed,
			"records_succeeded": c.Succeeded,
			"records_failed":    c.Failed,
			"records_validated": c.Validated,
			"percent_complete":  percent,
		}),
	})
}

// ExecutionFinished writes the single terminal entry: info on a completed
// run, error on a failed one.
func (a *Auditor) ExecutionFinished(ctx context.Context, jobID, executionID string, status models.ExecutionStatus, c models.Counters, totalRecords int64, errorMessage string) {
	level := models.LogLevelInfo
	message := "execution completed"
	if status == models.ExecutionStatusFailed {
		level = models.LogLevelError
		message = "execution failed"
	}
	d := map[string]any{
		"status":            string(status),
		"total_records":     totalRecords,
		"records_processed": c.Processed,
		"records_succeeded": c.Succeeded,
		"records_failed":    c.Failed,
		"records_validated": c.Validated,
	}
	if errorMessage != "" {
		d["error"] = errorMessage
	}
	a.append(ctx, models.LogEntry{
		JobID:       strptr(jobID),
		ExecutionID: strptr(executionID),
		Level:       level,
		Message:     message,
		Details:     details(d),
	})
}

// ExecutionAborted records an unexpected failure that cut the run short.
// The terminal entry still follows.
func (a *Auditor) ExecutionAborted(ctx context.Context, jobID, executionID string, cause error) {
	a.append(ctx, models.LogEntry{
		JobID:       strptr(jobID),
		ExecutionID: strptr(executionID),
		Level:       models.LogLevelError,
		Message:     fmt.Sprintf("execution aborted: %v", cause),
		Details:     details(map[string]any{"error": cause.Error()}),
	})
}

func (a *Auditor) ExecutionReaped(ctx context.Context, jobID, executionID string, silentFor time.Duration) {
	a.append(ctx, models.LogEntry{
		JobID:       strptr(jobID),
		ExecutionID: strptr(executionID),
		Level:       models.LogLevelError,
		Message:     "execution reaped: heartbeat lost",
		Details: details(map[string]any{
			"silent_for": silentFor.Round(time.Second).String(),
		}),
	})
}

func (a *Auditor) append(ctx context.Context, entry models.LogEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	if err := a.sink.AppendLog(ctx, entry); err != nil {
		a.logger.Error().Err(err).
			Str("message", entry.Message).
			Msg("failed to append audit entry")
	}
}

func details(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func strptr(s string) *string {
	return &s
}
