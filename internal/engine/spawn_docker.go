package engine

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DockerSpawner launches the runner image as a detached container, with the
// same env contract as the process spawner. The container is not awaited;
// AutoRemove cleans it up once the run is over.
type DockerSpawner struct {
	cli    *client.Client
	image  string
	env    []string
	logger zerolog.Logger
}

// NewDockerSpawner connects to the local Docker daemon. extraEnv is passed
// into every runner container, typically the database URL the child needs
// to reach the store.
func NewDockerSpawner(image string, extraEnv []string, logger zerolog.Logger) (*DockerSpawner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "create docker client")
	}
	return &DockerSpawner{
		cli:    cli,
		image:  image,
		env:    extraEnv,
		logger: logger.With().Str("component", "docker_spawner").Logger(),
	}, nil
}

func (s *DockerSpawner) Name() string { return "docker" }

func (s *DockerSpawner) SpawnDetached(ctx context.Context, ec ExecContext) error {
	if s.image == "" {
		return errors.New("runner image not configured")
	}
	payload, err := ec.Encode()
	if err != nil {
		return err
	}

	containerConfig := &container.Config{
		Image: s.image,
		Cmd:   []string{"run"},
		Env:   append([]string{EnvExecContext + "=" + payload}, s.env...),
	}
	hostConfig := &container.HostConfig{
		AutoRemove: true,
	}

	resp, err := s.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "railyard-exec-"+shortID(ec.ExecutionID))
	if err != nil {
		return errors.Wrap(err, "create runner container")
	}
	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return errors.Wrap(err, "start runner container")
	}

	s.logger.Info().
		Str("container_id", shortID(resp.ID)).
		Str("execution_id", ec.ExecutionID).
		Msg("spawned runner container")
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
