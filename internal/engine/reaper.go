package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

const (
	DefaultReapInterval     = time.Minute
	DefaultHeartbeatTimeout = 5 * time.Minute
)

type ReaperConfig struct {
	Interval         time.Duration
	HeartbeatTimeout time.Duration
}

func (c ReaperConfig) withDefaults() ReaperConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultReapInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	return c
}

// Reaper fails running executions whose heartbeat has gone silent, covering
// detached runners that died without recording an outcome. Checkpoints
// refresh the heartbeat, so only genuinely stuck runs are swept.
type Reaper struct {
	store    Store
	tracker  *Tracker
	audit    *Auditor
	events   EventPublisher
	notifier Notifier
	cfg      ReaperConfig
	logger   zerolog.Logger
}

type ReaperOption func(*Reaper)

func WithReaperNotifier(n Notifier) ReaperOption {
	return func(r *Reaper) { r.notifier = n }
}

func NewReaper(store Store, tracker *Tracker, audit *Auditor, events EventPublisher, cfg ReaperConfig, logger zerolog.Logger, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:   store,
		tracker: tracker,
		audit:   audit,
		events:  events,
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "reaper").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start blocks, sweeping on the configured interval until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.cfg.Interval).
		Dur("heartbeat_timeout", r.cfg.HeartbeatTimeout).
		Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep fails every execution whose heartbeat is older than the timeout.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.cfg.HeartbeatTimeout)
	stale, err := r.store.StaleExecutions(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list stale executions")
		return
	}

	for _, exec := range stale {
		silent := time.Since(exec.HeartbeatAt)
		msg := fmt.Sprintf("execution heartbeat lost (silent for %s)", silent.Round(time.Second))

		err := r.tracker.Finish(ctx, exec.ID, models.ExecutionStatusFailed, msg)
		if errors.Is(err, ErrAlreadyTerminal) {
			continue // finished while we were sweeping
		}
		if err != nil {
			r.logger.Warn().Err(err).
				Str("execution_id", exec.ID).
				Msg("failed to reap execution")
			continue
		}

		r.audit.ExecutionReaped(ctx, exec.JobID, exec.ID, silent)
		publishEvent(ctx, r.events, r.logger, ExecutionEvent{
			Type:        EventExecutionReaped,
			ExecutionID: exec.ID,
			JobID:       exec.JobID,
			Status:      models.ExecutionStatusFailed,
			Counters:    exec.Counters,
			Error:       msg,
		})
		r.notify(ctx, exec)
		r.logger.Warn().
			Str("execution_id", exec.ID).
			Str("job_id", exec.JobID).
			Dur("silent_for", silent).
			Msg("reaped stuck execution")
	}
}

func (r *Reaper) notify(ctx context.Context, exec models.Execution) {
	if r.notifier == nil {
		return
	}
	job, err := r.store.GetJob(ctx, exec.JobID)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("job_id", exec.JobID).
			Msg("failed to load job for reap notification")
		job = models.Job{ID: exec.JobID}
	}
	r.notifier.NotifyExecutionReaped(ctx, job, exec.ID)
}
