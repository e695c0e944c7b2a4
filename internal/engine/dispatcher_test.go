package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchRig struct {
	store      *memStore
	sink       *memSink
	notifier   *fakeNotifier
	events     *fakePublisher
	dispatcher *Dispatcher
}

func newDispatchRig(src Source, opts ...DispatcherOption) *dispatchRig {
	rig := &dispatchRig{
		store:    newMemStore(activeJob("job-1", "orders")),
		sink:     &memSink{},
		notifier: &fakeNotifier{},
		events:   &fakePublisher{},
	}
	tracker := NewTracker(rig.store, testLogger())
	audit := NewAuditor(rig.sink, testLogger())
	proc := NewProcessor(testProcessorConfig(), tracker, audit, testLogger())
	resolver := &fakeResolver{src: src}
	runner := NewRunner(rig.store, tracker, audit, proc, resolver, testLogger())
	all := append([]DispatcherOption{
		WithAsyncDelay(0),
		WithDispatchNotifier(rig.notifier),
		WithDispatchEventPublisher(rig.events),
	}, opts...)
	rig.dispatcher = NewDispatcher(tracker, audit, runner, rig.store, resolver, testLogger(), all...)
	return rig
}

func (r *dispatchRig) waitForTerminal(t *testing.T, executionID string) models.Execution {
	t.Helper()
	require.Eventually(t, func() bool {
		exec, err := r.store.GetExecution(context.Background(), executionID)
		return err == nil && exec.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond, "execution never reached a terminal state")
	return r.store.execution(executionID)
}

func TestDispatcherTrigger_AcknowledgesImmediately(t *testing.T) {
	t.Parallel()
	detached := &fakeDetached{}
	rig := newDispatchRig(&fakeSource{total: 500}, WithDetached(detached))

	ack, err := rig.dispatcher.Trigger(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, ack.Started)
	assert.NotEmpty(t, ack.ExecutionID)

	// The trigger only claims and launches; the run itself is elsewhere.
	exec := rig.store.execution(ack.ExecutionID)
	assert.Equal(t, models.ExecutionStatusRunning, exec.Status)

	launches := detached.launches()
	require.Len(t, launches, 1)
	assert.Equal(t, ack.ExecutionID, launches[0].ExecutionID)
	assert.Equal(t, "job-1", launches[0].JobID)

	entries := rig.sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, `execution started for job "orders"`, entries[0].Message)
	assert.Equal(t, float64(500), decodeDetails(t, entries[0])["total_records"])

	assert.Equal(t, []string{ack.ExecutionID}, rig.notifier.started)

	events := rig.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventExecutionStarted, events[0].Type)
	assert.Equal(t, models.ExecutionStatusRunning, events[0].Status)
}

func TestDispatcherTrigger_SecondTriggerConflicts(t *testing.T) {
	t.Parallel()
	rig := newDispatchRig(&fakeSource{total: 500}, WithDetached(&fakeDetached{}))

	_, err := rig.dispatcher.Trigger(context.Background(), "job-1")
	require.NoError(t, err)

	ack, err := rig.dispatcher.Trigger(context.Background(), "job-1")
	require.ErrorIs(t, err, ErrJobNotRunnable)
	assert.Empty(t, ack.ExecutionID)
	assert.False(t, ack.Started)
}

func TestDispatcherTrigger_UnknownJob(t *testing.T) {
	t.Parallel()
	rig := newDispatchRig(&fakeSource{total: 10})

	_, err := rig.dispatcher.Trigger(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestDispatcherTrigger_InactiveJob(t *testing.T) {
	t.Parallel()
	rig := newDispatchRig(&fakeSource{total: 10})
	job := activeJob("job-2", "paused feed")
	job.IsActive = false
	rig.store.putJob(job)

	_, err := rig.dispatcher.Trigger(context.Background(), "job-2")
	require.ErrorIs(t, err, ErrJobNotRunnable)
}

func TestDispatcherTrigger_RunsInProcessWithoutSubstrate(t *testing.T) {
	t.Parallel()
	rig := newDispatchRig(&fakeSource{total: 1000})

	ack, err := rig.dispatcher.Trigger(context.Background(), "job-1")
	require.NoError(t, err)

	exec := rig.waitForTerminal(t, ack.ExecutionID)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, models.Counters{Processed: 1000, Succeeded: 1000, Validated: 980}, exec.Counters)
}

func TestDispatcherTrigger_SpawnFailureFallsBack(t *testing.T) {
	t.Parallel()
	detached := &fakeDetached{spawnErr: errors.New("docker daemon unreachable")}
	rig := newDispatchRig(&fakeSource{total: 1000}, WithDetached(detached))

	ack, err := rig.dispatcher.Trigger(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, ack.Started)

	// The in-process fallback produces the same outcome a detached run
	// would have.
	exec := rig.waitForTerminal(t, ack.ExecutionID)
	assert.Equal(t, models.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, models.Counters{Processed: 1000, Succeeded: 1000, Validated: 980}, exec.Counters)
	assert.Contains(t, rig.sink.messages(), "execution completed")
}
