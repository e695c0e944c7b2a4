package engine

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProcessSpawner launches the runner binary as a detached OS process. The
// execution context travels in a single env var; the child opens its own
// store connection and owns the run from there.
type ProcessSpawner struct {
	bin    string
	logger zerolog.Logger
}

func NewProcessSpawner(bin string, logger zerolog.Logger) *ProcessSpawner {
	return &ProcessSpawner{
		bin:    bin,
		logger: logger.With().Str("component", "process_spawner").Logger(),
	}
}

func (s *ProcessSpawner) Name() string { return "process" }

func (s *ProcessSpawner) SpawnDetached(_ context.Context, ec ExecContext) error {
	if s.bin == "" {
		return errors.New("runner binary not configured")
	}
	payload, err := ec.Encode()
	if err != nil {
		return err
	}

	cmd := exec.Command(s.bin, "run")
	cmd.Env = append(os.Environ(), EnvExecContext+"="+payload)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", s.bin)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits; its result is deliberately dropped
	// because the run reports through the store.
	go func() {
		err := cmd.Wait()
		s.logger.Debug().Err(err).
			Int("pid", pid).
			Str("execution_id", ec.ExecutionID).
			Msg("detached runner exited")
	}()

	s.logger.Info().
		Int("pid", pid).
		Str("execution_id", ec.ExecutionID).
		Msg("spawned detached runner")
	return nil
}
