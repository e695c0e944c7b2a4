package engine

import (
	"context"
	"time"

	"github.com/railyard/railyard-api/internal/models"
)

// Store is the persistence surface the engine depends on. The production
// implementation is backed by Postgres in the repository package; tests use
// an in-memory one. Implementations must return ErrJobNotFound,
// ErrExecutionNotFound and ErrJobNotRunnable for the matching conditions.
type Store interface {
	GetJob(ctx context.Context, jobID string) (models.Job, error)

	// BeginExecution atomically claims the job (active, no run in flight,
	// status flipped to running, last_run stamped) and inserts the given
	// running execution. A lost claim returns ErrJobNotRunnable.
	BeginExecution(ctx context.Context, exec models.Execution) (models.Execution, error)

	GetExecution(ctx context.Context, executionID string) (models.Execution, error)

	// SaveProgress persists counters and refreshes the heartbeat, but only
	// while the execution is still running. False means the write was
	// dropped because the execution is already terminal.
	SaveProgress(ctx context.Context, executionID string, c models.Counters, at time.Time) (bool, error)

	// FinishExecution moves a running execution to a terminal status,
	// setting completed_at and the error message. False means the execution
	// was already terminal.
	FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage *string, at time.Time) (bool, error)

	// SettleJob records the outcome of a finished run on the job row.
	SettleJob(ctx context.Context, jobID string, status models.JobStatus, nextRun *time.Time) error

	// StaleExecutions lists running executions whose heartbeat is older
	// than the cutoff.
	StaleExecutions(ctx context.Context, cutoff time.Time) ([]models.Execution, error)
}

// LogSink receives append-only audit entries.
type LogSink interface {
	AppendLog(ctx context.Context, entry models.LogEntry) error
}

// Source is one extraction/transformation driver bound to a job's source
// connection. Real drivers are supplied by integrations; the built-in
// simulator stands in for formats without one.
type Source interface {
	// TotalRecords is the declared or estimated workload size.
	TotalRecords(ctx context.Context) (int64, error)

	// ProcessBatch handles the records in [offset, offset+limit). Failures
	// of individual records are counted in the result, not returned; an
	// error return aborts the whole run.
	ProcessBatch(ctx context.Context, offset, limit int64) (BatchResult, error)
}

// BatchResult is the per-batch record tally.
type BatchResult struct {
	Succeeded int64
	Failed    int64
}

// SourceResolver picks the Source implementation for a job.
type SourceResolver interface {
	SourceFor(ctx context.Context, job models.Job) (Source, error)
}

// Notifier fans execution lifecycle events out to notification channels.
type Notifier interface {
	NotifyExecutionStarted(ctx context.Context, job models.Job, executionID string)
	NotifyExecutionCompleted(ctx context.Context, job models.Job, executionID string, c models.Counters)
	NotifyExecutionFailed(ctx context.Context, job models.Job, executionID string, errorMessage string)
	NotifyExecutionReaped(ctx context.Context, job models.Job, executionID string)
}
