package activities

import (
	"context"
	"time"

	"github.com/railyard/railyard-api/internal/engine"
	"go.temporal.io/sdk/activity"
)

type Activities struct {
	Runner *engine.Runner
}

// RunExecution executes one dispatched run to its terminal state. The engine
// records the outcome itself; the returned error only tells Temporal whether
// the attempt could do so.
func (a *Activities) RunExecution(ctx context.Context, ec engine.ExecContext) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Running execution", "ExecutionID", ec.ExecutionID, "JobID", ec.JobID)

	// Heartbeat while the engine works so worker loss is detected.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, ec.ExecutionID)
			}
		}
	}()

	err := a.Runner.Run(ctx, ec)
	if err != nil {
		logger.Error("Execution could not record its outcome", "ExecutionID", ec.ExecutionID, "error", err)
	}
	return err
}
