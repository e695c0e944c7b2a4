package engine

import (
	"context"
	"time"

	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// DefaultAsyncDelay is the pause before a fallback in-process run starts.
const DefaultAsyncDelay = 100 * time.Millisecond

// Detached launches a run as an independent unit of work outside the
// caller. The context covers only the launch itself; the run gets its own
// lifetime and reports exclusively through the store.
type Detached interface {
	Name() string
	SpawnDetached(ctx context.Context, ec ExecContext) error
}

// TriggerAck is the immediate answer to a trigger; processing continues in
// the background.
type TriggerAck struct {
	ExecutionID string `json:"execution_id"`
	Started     bool   `json:"started"`
}

// Dispatcher turns a trigger into a running execution. The synchronous part
// claims the job, opens the execution and writes the start audit entry; the
// launch prefers the detached substrate and falls back to an in-process
// asynchronous run when spawning fails. Run failures never reach the
// trigger caller.
type Dispatcher struct {
	tracker  *Tracker
	audit    *Auditor
	runner   *Runner
	store    Store
	sources  SourceResolver
	detached Detached
	delay    time.Duration
	notifier Notifier
	events   EventPublisher
	logger   zerolog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithDetached sets the preferred launch substrate. Without one every run
// falls back to the in-process path.
func WithDetached(d Detached) DispatcherOption {
	return func(dp *Dispatcher) { dp.detached = d }
}

func WithAsyncDelay(delay time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if delay >= 0 {
			dp.delay = delay
		}
	}
}

func WithDispatchNotifier(n Notifier) DispatcherOption {
	return func(dp *Dispatcher) { dp.notifier = n }
}

func WithDispatchEventPublisher(p EventPublisher) DispatcherOption {
	return func(dp *Dispatcher) { dp.events = p }
}

func NewDispatcher(tracker *Tracker, audit *Auditor, runner *Runner, store Store, sources SourceResolver, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tracker: tracker,
		audit:   audit,
		runner:  runner,
		store:   store,
		sources: sources,
		delay:   DefaultAsyncDelay,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger starts a new execution for the job and acknowledges immediately.
// ErrJobNotFound and ErrJobNotRunnable are the only errors a caller sees.
func (d *Dispatcher) Trigger(ctx context.Context, jobID string) (TriggerAck, error) {
	exec, err := d.tracker.Begin(ctx, jobID)
	if err != nil {
		return TriggerAck{}, err
	}

	job, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		// The job vanished between claim and read; the runner will record
		// the failure.
		d.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to reload job after claim")
	}

	total := d.resolveTotal(ctx, job)
	d.audit.ExecutionStarted(ctx, job, exec.ID, total)
	publishEvent(ctx, d.events, d.logger, ExecutionEvent{
		Type:        EventExecutionStarted,
		ExecutionID: exec.ID,
		JobID:       jobID,
		JobName:     job.Name,
		Status:      models.ExecutionStatusRunning,
	})
	if d.notifier != nil {
		d.notifier.NotifyExecutionStarted(ctx, job, exec.ID)
	}

	d.launch(ctx, ExecContext{ExecutionID: exec.ID, JobID: jobID})

	return TriggerAck{ExecutionID: exec.ID, Started: true}, nil
}

func (d *Dispatcher) launch(ctx context.Context, ec ExecContext) {
	if d.detached != nil {
		err := d.detached.SpawnDetached(ctx, ec)
		if err == nil {
			d.logger.Info().
				Str("execution_id", ec.ExecutionID).
				Str("substrate", d.detached.Name()).
				Msg("execution dispatched")
			return
		}
		d.logger.Warn().Err(err).
			Str("execution_id", ec.ExecutionID).
			Str("substrate", d.detached.Name()).
			Msg("detached launch failed, falling back to in-process run")
	}
	d.scheduleAsync(ec)
}

// scheduleAsync runs the execution on an in-process goroutine after a brief
// delay. The task result is discarded on purpose: once dispatched, outcomes
// live in the store and the audit trail, not in a handle.
func (d *Dispatcher) scheduleAsync(ec ExecContext) {
	time.AfterFunc(d.delay, func() {
		if err := d.runner.Run(context.Background(), ec); err != nil {
			d.logger.Error().Err(err).
				Str("execution_id", ec.ExecutionID).
				Msg("in-process execution could not record its outcome")
		}
	})
	d.logger.Info().
		Str("execution_id", ec.ExecutionID).
		Dur("delay", d.delay).
		Msg("execution scheduled in-process")
}

// resolveTotal probes the source for the declared workload size so the
// start audit entry can carry it. Failures here are the runner's problem,
// not the trigger's.
func (d *Dispatcher) resolveTotal(ctx context.Context, job models.Job) int64 {
	src, err := d.sources.SourceFor(ctx, job)
	if err != nil {
		return 0
	}
	total, err := src.TotalRecords(ctx)
	if err != nil {
		return 0
	}
	return total
}
