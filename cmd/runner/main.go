package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/bus"
	"github.com/railyard/railyard-api/internal/config"
	"github.com/railyard/railyard-api/internal/connector"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/notification"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "railyard-runner",
		Short: "Detached execution runner for Railyard jobs",
	}
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute the run described by " + engine.EnvExecContext,
		RunE:  runExecution,
	}
}

// runExecution drives one execution to its terminal state. The dispatcher
// already claimed the job and created the execution row; everything here
// reports progress through the shared store.
func runExecution(cmd *cobra.Command, args []string) error {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Str("component", "runner").Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	raw := os.Getenv(engine.EnvExecContext)
	if raw == "" {
		return errors.Errorf("%s is not set", engine.EnvExecContext)
	}
	ec, err := engine.DecodeExecContext(raw)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if level, lerr := zerolog.ParseLevel(cfg.LogLevel); lerr == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return errors.Wrap(err, "ping database")
	}

	jobRepo := repository.NewJobRepository(db)
	logRepo := repository.NewLogRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	registry := connector.NewRegistry(connRepo, logger)

	// The runner owns the terminal transition, so it also owns the
	// notifications and events that go with it.
	var notifiers []notification.Notifier
	if cfg.Email.SMTPHost != "" {
		emailNotifier, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			return errors.Wrap(err, "configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Webhook, logger))
	}
	notificationService := notification.NewService(repository.NewNotificationRepository(db), logger, notifiers...)

	tracker := engine.NewTracker(jobRepo, logger)
	audit := engine.NewAuditor(logRepo, logger)
	processor := engine.NewProcessor(engine.ProcessorConfig{
		BatchSize:         cfg.Engine.BatchSize,
		MilestoneInterval: int(cfg.Engine.MilestoneInterval),
		BatchPause:        cfg.Engine.BatchPause,
	}, tracker, audit, logger)

	runnerOpts := []engine.RunnerOption{
		engine.WithFailureThreshold(cfg.Engine.FailureThreshold),
		engine.WithNotifier(notificationService),
	}
	if cfg.NATS.URL != "" {
		events, err := bus.Connect(cfg.NATS.URL)
		if err != nil {
			return errors.Wrap(err, "connect to NATS")
		}
		defer events.Close()
		runnerOpts = append(runnerOpts, engine.WithEventPublisher(events))
	}
	runner := engine.NewRunner(jobRepo, tracker, audit, processor, registry, logger, runnerOpts...)

	// A termination signal aborts the run; the engine records the abort
	// before the process exits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info().Msgf("Received signal: %s. Aborting run...", sig)
		cancel()
	}()

	logger.Info().
		Str("execution_id", ec.ExecutionID).
		Str("job_id", ec.JobID).
		Msg("runner starting")

	if err := runner.Run(ctx, ec); err != nil {
		logger.Error().Err(err).Str("execution_id", ec.ExecutionID).Msg("run failed")
		return err
	}

	logger.Info().Str("execution_id", ec.ExecutionID).Msg("run complete")
	return nil
}
