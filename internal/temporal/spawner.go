package temporal

import (
	"context"

	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/temporal/workflows"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
)

// Spawner launches executions as Temporal workflows. It satisfies the
// dispatcher's detached substrate contract.
type Spawner struct {
	client    tc.Client
	taskQueue string
	logger    zerolog.Logger
}

func NewSpawner(client tc.Client, taskQueue string, logger zerolog.Logger) *Spawner {
	if taskQueue == "" {
		taskQueue = TaskQueueName
	}
	return &Spawner{
		client:    client,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "temporal_spawner").Logger(),
	}
}

func (s *Spawner) Name() string { return "temporal" }

func (s *Spawner) SpawnDetached(ctx context.Context, ec engine.ExecContext) error {
	opts := tc.StartWorkflowOptions{
		ID:        WorkflowIDPrefix + ec.ExecutionID,
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, workflows.ExecutionWorkflow, ec)
	if err != nil {
		return err
	}
	// The handle is dropped here on purpose; outcomes are read from the
	// store, not awaited.
	s.logger.Info().
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Str("execution_id", ec.ExecutionID).
		Msg("execution workflow started")
	return nil
}
