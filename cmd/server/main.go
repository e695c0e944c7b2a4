package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/railyard/railyard-api/internal/bus"
	"github.com/railyard/railyard-api/internal/config"
	"github.com/railyard/railyard-api/internal/connector"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/handlers"
	"github.com/railyard/railyard-api/internal/middleware"
	"github.com/railyard/railyard-api/internal/migration"
	"github.com/railyard/railyard-api/internal/notification"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/railyard/railyard-api/internal/routes"
	"github.com/railyard/railyard-api/internal/temporal"
	"github.com/railyard/railyard-api/internal/temporal/activities"
	"github.com/railyard/railyard-api/internal/temporal/workflows"
	"github.com/railyard/railyard-api/internal/utils"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config        *config.Config
	db            *sql.DB
	logger        zerolog.Logger
	notifications notification.Service
	registry      *connector.Registry

	jobs        repository.JobRepository
	logs        repository.LogRepository
	connections repository.ConnectionRepository
	users       repository.UserRepository

	events         *bus.Client // nil without a NATS URL
	temporalClient tc.Client   // nil unless dispatch mode is temporal

	dispatcher *engine.Dispatcher
	reaper     *engine.Reaper
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("auth.jwt_secret is required (set RAILYARD_AUTH_JWT_SECRET)")
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.Run(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	app := &application{
		config:      cfg,
		db:          db,
		logger:      logger,
		jobs:        repository.NewJobRepository(db),
		logs:        repository.NewLogRepository(db),
		connections: repository.NewConnectionRepository(db),
		users:       repository.NewUserRepository(db),
	}
	app.registry = connector.NewRegistry(app.connections, logger)
	app.notifications = app.initNotifications(logger)

	// Connect the event bus when one is configured.
	if cfg.NATS.URL != "" {
		app.events, err = bus.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer app.events.Close()
	}

	// Assemble the execution engine and the dispatch substrate.
	temporalWorker := app.initEngine(logger)
	if app.temporalClient != nil {
		defer app.temporalClient.Close()
	}

	// Sweep for executions whose runner died without reporting back.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go app.reaper.Start(reaperCtx)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.RequestLogger(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, stopReaper, logger)

	logger.Info().Msg("Application terminated.")
}

// initNotifications wires the configured delivery channels into the
// notification service. Channels with no configuration are left out.
func (app *application) initNotifications(logger zerolog.Logger) notification.Service {
	notificationRepo := repository.NewNotificationRepository(app.db)

	var notifiers []notification.Notifier
	if app.config.Email.SMTPHost != "" {
		emailNotifier, err := notification.NewEmailNotifier(app.config.Email, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}
	if app.config.Webhook.URL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(app.config.Webhook, logger))
	}

	return notification.NewService(notificationRepo, logger, notifiers...)
}

// initEngine builds the tracker, processor, runner, dispatcher and reaper.
// Returns the Temporal worker when dispatch mode is temporal, nil otherwise.
func (app *application) initEngine(logger zerolog.Logger) worker.Worker {
	cfg := app.config

	tracker := engine.NewTracker(app.jobs, logger)
	audit := engine.NewAuditor(app.logs, logger)
	processor := engine.NewProcessor(engine.ProcessorConfig{
		BatchSize:         cfg.Engine.BatchSize,
		MilestoneInterval: int(cfg.Engine.MilestoneInterval),
		BatchPause:        cfg.Engine.BatchPause,
	}, tracker, audit, logger)

	runnerOpts := []engine.RunnerOption{
		engine.WithFailureThreshold(cfg.Engine.FailureThreshold),
		engine.WithNotifier(app.notifications),
	}
	if app.events != nil {
		runnerOpts = append(runnerOpts, engine.WithEventPublisher(app.events))
	}
	runner := engine.NewRunner(app.jobs, tracker, audit, processor, app.registry, logger, runnerOpts...)

	detached, temporalWorker := app.initDetached(runner, logger)

	dispatchOpts := []engine.DispatcherOption{
		engine.WithAsyncDelay(cfg.Dispatch.AsyncDelay),
		engine.WithDispatchNotifier(app.notifications),
	}
	if detached != nil {
		dispatchOpts = append(dispatchOpts, engine.WithDetached(detached))
	}
	if app.events != nil {
		dispatchOpts = append(dispatchOpts, engine.WithDispatchEventPublisher(app.events))
	}
	app.dispatcher = engine.NewDispatcher(tracker, audit, runner, app.jobs, app.registry, logger, dispatchOpts...)

	app.reaper = engine.NewReaper(app.jobs, tracker, audit, app.eventPublisher(), engine.ReaperConfig{
		Interval:         cfg.Engine.ReapInterval,
		HeartbeatTimeout: cfg.Engine.HeartbeatTimeout,
	}, logger, engine.WithReaperNotifier(app.notifications))

	return temporalWorker
}

// initDetached picks the substrate that runs executions outside the request
// path. Inline mode returns nothing and the dispatcher runs them itself.
func (app *application) initDetached(runner *engine.Runner, logger zerolog.Logger) (engine.Detached, worker.Worker) {
	cfg := app.config

	switch cfg.Dispatch.Mode {
	case "docker":
		extraEnv := []string{"RAILYARD_DATABASE_URL=" + cfg.DatabaseURL}
		if key := os.Getenv(utils.EncKeyEnv); key != "" {
			extraEnv = append(extraEnv, utils.EncKeyEnv+"="+key)
		}
		spawner, err := engine.NewDockerSpawner(cfg.Dispatch.DockerImage, extraEnv, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Docker client")
		}
		return spawner, nil
	case "temporal":
		return app.startTemporalWorker(runner, logger)
	case "inline":
		return nil, nil
	default:
		if cfg.Dispatch.RunnerBin == "" {
			logger.Info().Msg("No runner binary configured; executions run in-process")
			return nil, nil
		}
		return engine.NewProcessSpawner(cfg.Dispatch.RunnerBin, logger), nil
	}
}

// eventPublisher avoids handing a typed nil to the engine when no bus is
// configured.
func (app *application) eventPublisher() engine.EventPublisher {
	if app.events == nil {
		return nil
	}
	return app.events
}

// startTemporalWorker dials Temporal and starts a worker that hosts
// executions for this deployment, alongside the spawner that enqueues them.
func (app *application) startTemporalWorker(runner *engine.Runner, logger zerolog.Logger) (engine.Detached, worker.Worker) {
	cfg := app.config.Temporal

	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    temporal.NewLogAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	app.temporalClient = temporalClient

	w := worker.New(temporalClient, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ExecutionWorkflow)
	w.RegisterActivity(&activities.Activities{Runner: runner})

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return temporal.NewSpawner(temporalClient, cfg.TaskQueue, logger), w
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	return routes.NewRouter(routes.Handlers{
		Health:       handlers.NewHealthHandler(app.db),
		Auth:         handlers.NewAuthHandler(app.users, app.config.Auth, logger),
		Job:          handlers.NewJobHandler(app.jobs, app.dispatcher, logger),
		Execution:    handlers.NewExecutionHandler(app.jobs, app.logs, logger),
		Log:          handlers.NewLogHandler(app.logs, logger),
		Connection:   handlers.NewConnectionHandler(app.connections, app.registry, logger),
		Stats:        handlers.NewStatsHandler(app.jobs, logger),
		Notification: handlers.NewNotificationHandler(app.notifications, logger),
		User:         handlers.NewUserHandler(app.users, logger),
	})
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, stopReaper context.CancelFunc, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	stopReaper()

	if temporalWorker != nil {
		logger.Info().Msg("Stopping Temporal worker...")
		temporalWorker.Stop()
		logger.Info().Msg("Temporal worker stopped.")
	}
}
