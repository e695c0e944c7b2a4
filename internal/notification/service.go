package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
)

type Event struct {
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

// Service persists notifications and fans them out to the configured
// channels. The NotifyExecution* methods satisfy the engine's notifier
// contract; they never fail the caller.
type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	ListRecent(ctx context.Context, limit int, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (models.Notification, error)

	NotifyExecutionStarted(ctx context.Context, job models.Job, executionID string)
	NotifyExecutionCompleted(ctx context.Context, job models.Job, executionID string, c models.Counters)
	NotifyExecutionFailed(ctx context.Context, job models.Job, executionID string, errorMessage string)
	NotifyExecutionReaped(ctx context.Context, job models.Job, executionID string)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	message := strings.TrimSpace(evt.Message)
	if title == "" {
		title = string(evt.Event)
	}

	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  message,
		Metadata: evt.Metadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyExecutionStarted(ctx context.Context, job models.Job, executionID string) {
	name := fallbackName(job.Name, job.ID)
	s.publishQuietly(ctx, Event{
		Event:    models.NotificationEventExecutionStarted,
		Severity: models.NotificationSeverityInfo,
		Title:    fmt.Sprintf("Execution started: %s", name),
		Message:  fmt.Sprintf("Job %s execution %s has started.", name, executionID),
		Metadata: executionMetadata(job, executionID),
	})
}

func (s *service) NotifyExecutionCompleted(ctx context.Context, job models.Job, executionID string, c models.Counters) {
	name := fallbackName(job.Name, job.ID)
	metadata := executionMetadata(job, executionID)
	metadata["records_processed"] = c.Processed
	metadata["records_succeeded"] = c.Succeeded
	metadata["records_failed"] = c.Failed
	metadata["records_validated"] = c.Validated
	s.publishQuietly(ctx, Event{
		Event:    models.NotificationEventExecutionCompleted,
		Severity: models.NotificationSeverityInfo,
		Title:    fmt.Sprintf("Execution completed: %s", name),
		Message:  fmt.Sprintf("Job %s execution %s completed, %d records processed.", name, executionID, c.Processed),
		Metadata: metadata,
	})
}

func (s *service) NotifyExecutionFailed(ctx context.Context, job models.Job, executionID string, errorMessage string) {
	name := fallbackName(job.Name, job.ID)
	reason := strings.TrimSpace(errorMessage)
	if reason == "" {
		reason = "unknown error"
	}
	metadata := executionMetadata(job, executionID)
	metadata["reason"] = reason
	s.publishQuietly(ctx, Event{
		Event:    models.NotificationEventExecutionFailed,
		Severity: models.NotificationSeverityError,
		Title:    fmt.Sprintf("Execution failed: %s", name),
		Message:  fmt.Sprintf("Job %s execution %s failed: %s", name, executionID, reason),
		Metadata: metadata,
	})
}

func (s *service) NotifyExecutionReaped(ctx context.Context, job models.Job, executionID string) {
	name := fallbackName(job.Name, job.ID)
	s.publishQuietly(ctx, Event{
		Event:    models.NotificationEventExecutionReaped,
		Severity: models.NotificationSeverityWarning,
		Title:    fmt.Sprintf("Execution reaped: %s", name),
		Message:  fmt.Sprintf("Job %s execution %s stopped heartbeating and was marked failed.", name, executionID),
		Metadata: executionMetadata(job, executionID),
	})
}

func (s *service) ListRecent(ctx context.Context, limit int, unreadOnly bool) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, limit, unreadOnly)
}

func (s *service) MarkRead(ctx context.Context, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, notificationID)
}

func (s *service) publishQuietly(ctx context.Context, evt Event) {
	// Publish already logs; the engine must not see notification failures.
	_, _ = s.Publish(ctx, evt)
}

func executionMetadata(job models.Job, executionID string) map[string]interface{} {
	return map[string]interface{}{
		"job_id":       job.ID,
		"job_name":     job.Name,
		"execution_id": executionID,
	}
}

func fallbackName(name, fallback string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return fallback
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
