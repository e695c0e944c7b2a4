package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// Runner executes one run end to end: load the job, resolve its source,
// drive the batch processor, classify the outcome and record it. Every
// dispatch substrate funnels into Run, whether in this process or a
// detached one, so behavior is identical apart from isolation.
type Runner struct {
	store     Store
	tracker   *Tracker
	audit     *Auditor
	proc      *Processor
	sources   SourceResolver
	threshold float64
	notifier  Notifier
	events    EventPublisher
	logger    zerolog.Logger
}

type RunnerOption func(*Runner)

func WithFailureThreshold(threshold float64) RunnerOption {
	return func(r *Runner) {
		if threshold > 0 {
			r.threshold = threshold
		}
	}
}

func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

func WithEventPublisher(p EventPublisher) RunnerOption {
	return func(r *Runner) { r.events = p }
}

func NewRunner(store Store, tracker *Tracker, audit *Auditor, proc *Processor, sources SourceResolver, logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:     store,
		tracker:   tracker,
		audit:     audit,
		proc:      proc,
		sources:   sources,
		threshold: DefaultFailureThreshold,
		logger:    logger.With().Str("component", "runner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the execution to a terminal state. Workload failures never
// surface as an error; the returned error only reports that the outcome
// could not be recorded at all.
func (r *Runner) Run(ctx context.Context, ec ExecContext) (err error) {
	log := r.logger.With().
		Str("execution_id", ec.ExecutionID).
		Str("job_id", ec.JobID).
		Logger()

	var job models.Job
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("execution panicked")
			err = r.abort(ctx, ec, job, fmt.Errorf("panic: %v", rec), models.Counters{}, 0)
		}
	}()

	job, err = r.store.GetJob(ctx, ec.JobID)
	if err != nil {
		return r.abort(ctx, ec, job, errors.Wrap(err, "load job"), models.Counters{}, 0)
	}

	src, err := r.sources.SourceFor(ctx, job)
	if err != nil {
		return r.abort(ctx, ec, job, errors.Wrap(err, "resolve source"), models.Counters{}, 0)
	}

	totals, total, runErr := r.proc.Run(ctx, ec.JobID, ec.ExecutionID, src)
	if runErr != nil {
		return r.abort(ctx, ec, job, runErr, totals, total)
	}

	out := ClassifyOutcome(totals, total, r.threshold)
	return r.finish(ctx, ec, job, out.Status, out.ErrorMessage, totals, total)
}

// abort handles the unexpected-failure path: an extra error audit entry for
// the cause, then the regular failed terminal path with the cause's message.
func (r *Runner) abort(ctx context.Context, ec ExecContext, job models.Job, cause error, c models.Counters, total int64) error {
	fctx, cancel := finishContext(ctx)
	defer cancel()

	r.logger.Error().Err(cause).
		Str("execution_id", ec.ExecutionID).
		Str("job_id", ec.JobID).
		Msg("execution aborted")
	r.audit.ExecutionAborted(fctx, ec.JobID, ec.ExecutionID, cause)
	return r.finish(fctx, ec, job, models.ExecutionStatusFailed, cause.Error(), c, total)
}

func (r *Runner) finish(ctx context.Context, ec ExecContext, job models.Job, status models.ExecutionStatus, errorMessage string, c models.Counters, total int64) error {
	fctx, cancel := finishContext(ctx)
	defer cancel()

	if err := r.tracker.Finish(fctx, ec.ExecutionID, status, errorMessage); err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			// The reaper or another finisher got here first.
			r.logger.Warn().
				Str("execution_id", ec.ExecutionID).
				Msg("execution was already terminal")
			return nil
		}
		return errors.Wrap(err, "record outcome")
	}

	r.audit.ExecutionFinished(fctx, ec.JobID, ec.ExecutionID, status, c, total, errorMessage)

	eventType := EventExecutionCompleted
	if status == models.ExecutionStatusFailed {
		eventType = EventExecutionFailed
	}
	publishEvent(fctx, r.events, r.logger, ExecutionEvent{
		Type:        eventType,
		ExecutionID: ec.ExecutionID,
		JobID:       ec.JobID,
		JobName:     job.Name,
		Status:      status,
		Counters:    c,
		Error:       errorMessage,
	})
	if r.notifier != nil {
		if status == models.ExecutionStatusCompleted {
			r.notifier.NotifyExecutionCompleted(fctx, job, ec.ExecutionID, c)
		} else {
			r.notifier.NotifyExecutionFailed(fctx, job, ec.ExecutionID, errorMessage)
		}
	}
	return nil
}

// finishContext keeps terminal writes possible after the run's own context
// is gone; a cancelled run must still land in a terminal state.
func finishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 10*time.Second)
}
