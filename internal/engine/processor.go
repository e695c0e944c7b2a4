package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

const (
	DefaultBatchSize         = 100
	DefaultMilestoneInterval = 10
	DefaultBatchPause        = 100 * time.Millisecond

	// ValidatedPercent is the fixed share of processed records the
	// validation stage confirms.
	ValidatedPercent = 98
)

type ProcessorConfig struct {
	BatchSize         int64
	MilestoneInterval int
	BatchPause        time.Duration
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MilestoneInterval <= 0 {
		c.MilestoneInterval = DefaultMilestoneInterval
	}
	if c.BatchPause < 0 {
		c.BatchPause = DefaultBatchPause
	}
	return c
}

// Processor drives a workload through its source in sequential batches,
// checkpointing counters after every batch and recording an audit milestone
// every MilestoneInterval batches. Record-level failures are accumulated in
// the counters; only a source error, a checkpoint error or context
// cancellation aborts the run.
type Processor struct {
	cfg     ProcessorConfig
	tracker *Tracker
	audit   *Auditor
	logger  zerolog.Logger
}

func NewProcessor(cfg ProcessorConfig, tracker *Tracker, audit *Auditor, logger zerolog.Logger) *Processor {
	return &Processor{
		cfg:     cfg.withDefaults(),
		tracker: tracker,
		audit:   audit,
		logger:  logger.With().Str("component", "processor").Logger(),
	}
}

// Run processes the whole workload and returns the final counters along
// with the total record count. The counters returned on error reflect all
// progress made up to the abort, including a partial batch.
func (p *Processor) Run(ctx context.Context, jobID, executionID string, src Source) (models.Counters, int64, error) {
	var c models.Counters

	total, err := src.TotalRecords(ctx)
	if err != nil {
		return c, 0, errors.Wrap(err, "resolve workload size")
	}
	if total < 0 {
		total = 0
	}

	log := p.logger.With().Str("execution_id", executionID).Logger()
	log.Info().Int64("total_records", total).Int64("batch_size", p.cfg.BatchSize).Msg("processing started")

	batch := 0
	for offset := int64(0); offset < total; offset += p.cfg.BatchSize {
		batch++
		if batch > 1 {
			// Yield between batches; this is also the cancellation point.
			if err := p.pause(ctx); err != nil {
				return c, total, err
			}
		}

		limit := min(p.cfg.BatchSize, total-offset)
		res, batchErr := src.ProcessBatch(ctx, offset, limit)
		c.Succeeded += res.Succeeded
		c.Failed += res.Failed
		c.Processed = c.Succeeded + c.Failed
		c.Validated = c.Processed * ValidatedPercent / 100
		if batchErr != nil {
			// Best effort: keep the partial progress visible.
			_ = p.tracker.Checkpoint(ctx, executionID, c)
			return c, total, errors.Wrapf(batchErr, "batch %d failed", batch)
		}

		if err := p.tracker.Checkpoint(ctx, executionID, c); err != nil {
			return c, total, err
		}
		if batch%p.cfg.MilestoneInterval == 0 {
			p.audit.Milestone(ctx, jobID, executionID, c, total)
		}
	}

	log.Info().
		Int64("records_processed", c.Processed).
		Int64("records_failed", c.Failed).
		Msg("processing finished")
	return c, total, nil
}

func (p *Processor) pause(ctx context.Context) error {
	if p.cfg.BatchPause == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.cfg.BatchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
