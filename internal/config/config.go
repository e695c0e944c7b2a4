package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	LogLevel    string         `mapstructure:"log_level"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Dispatch    DispatchConfig `mapstructure:"dispatch"`
	Temporal    TemporalConfig `mapstructure:"temporal"`
	NATS        NATSConfig     `mapstructure:"nats"`
	Email       EmailConfig    `mapstructure:"email"`
	Webhook     WebhookConfig  `mapstructure:"webhook"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type EngineConfig struct {
	BatchSize         int64         `mapstructure:"batch_size"`
	MilestoneInterval int64         `mapstructure:"milestone_interval"`
	BatchPause        time.Duration `mapstructure:"batch_pause"`
	FailureThreshold  float64       `mapstructure:"failure_threshold"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	ReapInterval      time.Duration `mapstructure:"reap_interval"`
}

// DispatchConfig selects how triggered executions are launched. Mode is one
// of process, docker, temporal or inline; everything except inline falls back
// to the in-process path when the launch fails.
type DispatchConfig struct {
	Mode        string        `mapstructure:"mode"`
	AsyncDelay  time.Duration `mapstructure:"async_delay"`
	RunnerBin   string        `mapstructure:"runner_bin"`
	DockerImage string        `mapstructure:"docker_image"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type EmailConfig struct {
	From       string   `mapstructure:"from"`
	SMTPHost   string   `mapstructure:"smtp_host"`
	SMTPPort   int      `mapstructure:"smtp_port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	Recipients []string `mapstructure:"recipients"`
	// MinSeverity is the lowest severity that gets emailed. Defaults to
	// warning so routine execution traffic stays out of inboxes.
	MinSeverity string `mapstructure:"min_severity"`
}

// WebhookConfig enables a JSON POST per notification when URL is set.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// Load reads config.yaml and the RAILYARD_* environment. The file is
// optional; a containerized runner usually configures itself from the
// environment alone.
func Load() (*Config, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("RAILYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering every key lets the environment override keys the file
	// does not mention.
	for _, key := range []string{
		"database_url", "server_port", "log_level",
		"auth.jwt_secret", "auth.token_ttl",
		"engine.batch_size", "engine.milestone_interval", "engine.batch_pause",
		"engine.failure_threshold", "engine.heartbeat_timeout", "engine.reap_interval",
		"dispatch.mode", "dispatch.async_delay", "dispatch.runner_bin", "dispatch.docker_image",
		"temporal.host_port", "temporal.namespace", "temporal.task_queue",
		"nats.url",
		"email.from", "email.smtp_host", "email.smtp_port", "email.username", "email.password", "email.recipients",
		"email.min_severity",
		"webhook.url",
	} {
		v.SetDefault(key, nil)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Auth.TokenTTL == 0 {
		config.Auth.TokenTTL = 24 * time.Hour
	}

	if config.Engine.BatchSize == 0 {
		config.Engine.BatchSize = engine.DefaultBatchSize
	}
	if config.Engine.MilestoneInterval == 0 {
		config.Engine.MilestoneInterval = engine.DefaultMilestoneInterval
	}
	if config.Engine.BatchPause == 0 {
		config.Engine.BatchPause = engine.DefaultBatchPause
	}
	if config.Engine.FailureThreshold == 0 {
		config.Engine.FailureThreshold = engine.DefaultFailureThreshold
	}
	if config.Engine.HeartbeatTimeout == 0 {
		config.Engine.HeartbeatTimeout = engine.DefaultHeartbeatTimeout
	}
	if config.Engine.ReapInterval == 0 {
		config.Engine.ReapInterval = engine.DefaultReapInterval
	}

	if config.Dispatch.Mode == "" {
		config.Dispatch.Mode = "process"
	}
	if config.Dispatch.AsyncDelay == 0 {
		config.Dispatch.AsyncDelay = engine.DefaultAsyncDelay
	}
	if config.Dispatch.DockerImage == "" {
		config.Dispatch.DockerImage = "railyard/runner:latest"
	}

	if config.Temporal.Namespace == "" {
		config.Temporal.Namespace = "default"
	}
	if config.Temporal.TaskQueue == "" {
		config.Temporal.TaskQueue = "railyard-executions"
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.MinSeverity == "" {
		config.Email.MinSeverity = "warning"
	}

	return &config, nil
}
