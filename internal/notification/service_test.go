package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotificationRepo struct {
	mu        sync.Mutex
	created   []repository.CreateNotificationParams
	createErr error
}

func (f *fakeNotificationRepo) Create(_ context.Context, params repository.CreateNotificationParams) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Notification{}, f.createErr
	}
	f.created = append(f.created, params)
	return models.Notification{
		ID:        fmt.Sprintf("n-%d", len(f.created)),
		EventType: params.Event,
		Severity:  params.Severity,
		Title:     params.Title,
		Message:   params.Message,
	}, nil
}

func (f *fakeNotificationRepo) ListRecent(context.Context, int, bool) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeNotificationRepo) MarkRead(context.Context, string) (models.Notification, error) {
	return models.Notification{}, nil
}

func (f *fakeNotificationRepo) all() []repository.CreateNotificationParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.CreateNotificationParams(nil), f.created...)
}

type recordingChannel struct {
	mu        sync.Mutex
	delivered []models.Notification
	err       error
}

func (c *recordingChannel) Notify(_ context.Context, notif models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.delivered = append(c.delivered, notif)
	return nil
}

func (c *recordingChannel) all() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notification(nil), c.delivered...)
}

func testJob() models.Job {
	return models.Job{ID: "job-1", Name: "orders"}
}

func TestPublish_PersistsAndDelivers(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	channel := &recordingChannel{}
	svc := NewService(repo, zerolog.Nop(), channel)

	notif, err := svc.Publish(context.Background(), Event{
		Event:   models.NotificationEventExecutionCompleted,
		Title:   "  Execution completed: orders  ",
		Message: "done",
	})
	require.NoError(t, err)

	assert.Equal(t, "Execution completed: orders", notif.Title)
	assert.Equal(t, models.NotificationSeverityInfo, notif.Severity)

	delivered := channel.all()
	require.Len(t, delivered, 1)
	assert.Equal(t, notif.ID, delivered[0].ID)
}

func TestPublish_RequiresEventType(t *testing.T) {
	t.Parallel()
	svc := NewService(&fakeNotificationRepo{}, zerolog.Nop())

	_, err := svc.Publish(context.Background(), Event{Title: "no event"})
	require.Error(t, err)
}

func TestPublish_TitleFallsBackToEventType(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	notif, err := svc.Publish(context.Background(), Event{Event: models.NotificationEventExecutionStarted})
	require.NoError(t, err)
	assert.Equal(t, "execution_started", notif.Title)
}

func TestPublish_ChannelFailureDoesNotFailPublish(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	broken := &recordingChannel{err: errors.New("smtp refused")}
	healthy := &recordingChannel{}
	svc := NewService(repo, zerolog.Nop(), broken, healthy)

	_, err := svc.Publish(context.Background(), Event{Event: models.NotificationEventExecutionFailed})
	require.NoError(t, err)

	// Remaining channels still get the notification.
	assert.Len(t, healthy.all(), 1)
}

func TestNewService_DropsNilChannels(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop(), nil, &recordingChannel{})

	_, err := svc.Publish(context.Background(), Event{Event: models.NotificationEventExecutionStarted})
	require.NoError(t, err)
}

func TestNotifyExecutionCompleted_FormatsSummary(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	c := models.Counters{Processed: 1000, Succeeded: 940, Failed: 60, Validated: 980}
	svc.NotifyExecutionCompleted(context.Background(), testJob(), "exec-1", c)

	created := repo.all()
	require.Len(t, created, 1)
	p := created[0]
	assert.Equal(t, models.NotificationEventExecutionCompleted, p.Event)
	assert.Equal(t, models.NotificationSeverityInfo, p.Severity)
	assert.Equal(t, "Execution completed: orders", p.Title)
	assert.Equal(t, "Job orders execution exec-1 completed, 1000 records processed.", p.Message)
	assert.Equal(t, int64(60), p.Metadata["records_failed"])
	assert.Equal(t, "job-1", p.Metadata["job_id"])
}

func TestNotifyExecutionFailed_CarriesReason(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	svc.NotifyExecutionFailed(context.Background(), testJob(), "exec-1", "failure threshold exceeded: 60 of 1000 records failed (limit 5%)")

	created := repo.all()
	require.Len(t, created, 1)
	p := created[0]
	assert.Equal(t, models.NotificationSeverityError, p.Severity)
	assert.Equal(t, "Execution failed: orders", p.Title)
	assert.Contains(t, p.Message, "failure threshold exceeded")
	assert.Equal(t, "failure threshold exceeded: 60 of 1000 records failed (limit 5%)", p.Metadata["reason"])
}

func TestNotifyExecutionFailed_BlankReason(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	svc.NotifyExecutionFailed(context.Background(), testJob(), "exec-1", "   ")

	created := repo.all()
	require.Len(t, created, 1)
	assert.Contains(t, created[0].Message, "unknown error")
}

func TestNotifyExecutionStarted_UsesJobIDWhenNameMissing(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	svc.NotifyExecutionStarted(context.Background(), models.Job{ID: "job-9"}, "exec-1")

	created := repo.all()
	require.Len(t, created, 1)
	assert.Equal(t, "Execution started: job-9", created[0].Title)
}

func TestNotifyExecutionReaped_WarnsQuietly(t *testing.T) {
	t.Parallel()
	repo := &fakeNotificationRepo{createErr: errors.New("db down")}
	svc := NewService(repo, zerolog.Nop())

	// Engine-facing notifications must swallow persistence errors.
	svc.NotifyExecutionReaped(context.Background(), testJob(), "exec-1")
}
