package engine

import (
	"context"
	"time"

	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// Execution event types published on the bus.
const (
	EventExecutionStarted   = "started"
	EventExecutionCompleted = "completed"
	EventExecutionFailed    = "failed"
	EventExecutionReaped    = "reaped"
)

// ExecutionEvent is the wire shape live consumers (dashboards) subscribe to.
type ExecutionEvent struct {
	Type        string                 `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	JobID       string                 `json:"job_id"`
	JobName     string                 `json:"job_name,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Counters    models.Counters        `json:"counters"`
	Error       string                 `json:"error,omitempty"`
	At          time.Time              `json:"at"`
}

type EventPublisher interface {
	PublishExecutionEvent(ctx context.Context, event ExecutionEvent) error
}

// publishEvent is best effort; a dead bus must never affect a run.
func publishEvent(ctx context.Context, pub EventPublisher, logger zerolog.Logger, event ExecutionEvent) {
	if pub == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := pub.PublishExecutionEvent(ctx, event); err != nil {
		logger.Warn().Err(err).
			Str("event", event.Type).
			Str("execution_id", event.ExecutionID).
			Msg("failed to publish execution event")
	}
}
