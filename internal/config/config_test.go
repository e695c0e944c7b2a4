package config

import (
	"testing"
	"time"

	"github.com/railyard/railyard-api/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", config.ServerPort)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 24*time.Hour, config.Auth.TokenTTL)

	assert.Equal(t, int64(engine.DefaultBatchSize), config.Engine.BatchSize)
	assert.Equal(t, int64(engine.DefaultMilestoneInterval), config.Engine.MilestoneInterval)
	assert.Equal(t, engine.DefaultBatchPause, config.Engine.BatchPause)
	assert.Equal(t, engine.DefaultFailureThreshold, config.Engine.FailureThreshold)
	assert.Equal(t, engine.DefaultHeartbeatTimeout, config.Engine.HeartbeatTimeout)
	assert.Equal(t, engine.DefaultReapInterval, config.Engine.ReapInterval)

	assert.Equal(t, "process", config.Dispatch.Mode)
	assert.Equal(t, engine.DefaultAsyncDelay, config.Dispatch.AsyncDelay)
	assert.Equal(t, "railyard/runner:latest", config.Dispatch.DockerImage)

	assert.Equal(t, "default", config.Temporal.Namespace)
	assert.Equal(t, "railyard-executions", config.Temporal.TaskQueue)
	assert.Equal(t, 587, config.Email.SMTPPort)
	assert.Equal(t, "warning", config.Email.MinSeverity)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RAILYARD_SERVER_PORT", "9090")
	t.Setenv("RAILYARD_LOG_LEVEL", "debug")
	t.Setenv("RAILYARD_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("RAILYARD_ENGINE_BATCH_SIZE", "250")
	t.Setenv("RAILYARD_ENGINE_BATCH_PAUSE", "250ms")
	t.Setenv("RAILYARD_ENGINE_FAILURE_THRESHOLD", "0.2")
	t.Setenv("RAILYARD_DISPATCH_MODE", "docker")
	t.Setenv("RAILYARD_NATS_URL", "nats://broker:4222")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", config.ServerPort)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "env-secret", config.Auth.JWTSecret)
	assert.Equal(t, int64(250), config.Engine.BatchSize)
	assert.Equal(t, 250*time.Millisecond, config.Engine.BatchPause)
	assert.Equal(t, 0.2, config.Engine.FailureThreshold)
	assert.Equal(t, "docker", config.Dispatch.Mode)
	assert.Equal(t, "nats://broker:4222", config.NATS.URL)
}
