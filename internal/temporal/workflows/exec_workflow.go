package workflows

import (
	"time"

	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/temporal/activities"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// activityTimeout bounds a single run end to end; very large jobs should
// lower the batch pause instead of raising this.
const activityTimeout = 30 * time.Minute

// ExecutionWorkflow drives one execution through the engine. The activity
// does all the work; the workflow exists so Temporal owns retries on worker
// loss and gives operators visibility.
func ExecutionWorkflow(ctx workflow.Context, ec engine.ExecContext) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		HeartbeatTimeout:    time.Minute,
		// A terminal execution cannot be rerun; the reaper picks up runs
		// that die between attempts.
		RetryPolicy: &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting execution workflow", "ExecutionID", ec.ExecutionID, "JobID", ec.JobID)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities
	if err := workflow.ExecuteActivity(ctx, a.RunExecution, ec).Get(ctx, nil); err != nil {
		logger.Error("Execution workflow failed.", "ExecutionID", ec.ExecutionID, "error", err)
		return err
	}

	logger.Info("Execution workflow completed.", "ExecutionID", ec.ExecutionID)
	return nil
}
