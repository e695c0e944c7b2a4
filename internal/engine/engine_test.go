package engine

import (
	"context"
	"sync"
	"time"

	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// memStore implements Store in memory with the same claim semantics as the
// Postgres repository: conditional transitions, one running execution per
// job.
type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	execs map[string]*models.Execution

	// checkpoints keeps the full SaveProgress history per execution so
	// tests can assert counts and monotonicity.
	checkpoints map[string][]models.Counters
}

func newMemStore(jobs ...models.Job) *memStore {
	s := &memStore{
		jobs:        make(map[string]*models.Job),
		execs:       make(map[string]*models.Execution),
		checkpoints: make(map[string][]models.Counters),
	}
	for i := range jobs {
		job := jobs[i]
		s.jobs[job.ID] = &job
	}
	return s
}

func (s *memStore) GetJob(_ context.Context, jobID string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return *job, nil
}

func (s *memStore) BeginExecution(_ context.Context, exec models.Execution) (models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[exec.JobID]
	if !ok {
		return models.Execution{}, ErrJobNotFound
	}
	if !job.IsActive || job.Status == models.JobStatusRunning {
		return models.Execution{}, ErrJobNotRunnable
	}
	job.Status = models.JobStatusRunning
	started := exec.StartedAt
	job.LastRun = &started

	e := exec
	s.execs[e.ID] = &e
	return e, nil
}

func (s *memStore) GetExecution(_ context.Context, executionID string) (models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[executionID]
	if !ok {
		return models.Execution{}, ErrExecutionNotFound
	}
	return *exec, nil
}

func (s *memStore) SaveProgress(_ context.Context, executionID string, c models.Counters, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[executionID]
	if !ok {
		return false, ErrExecutionNotFound
	}
	if exec.Status.Terminal() {
		return false, nil
	}
	exec.Counters = c
	exec.HeartbeatAt = at
	s.checkpoints[executionID] = append(s.checkpoints[executionID], c)
	return true, nil
}

func (s *memStore) FinishExecution(_ context.Context, executionID string, status models.ExecutionStatus, errorMessage *string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[executionID]
	if !ok {
		return false, ErrExecutionNotFound
	}
	if exec.Status.Terminal() {
		return false, nil
	}
	exec.Status = status
	exec.CompletedAt = &at
	exec.ErrorMessage = errorMessage
	return true, nil
}

func (s *memStore) SettleJob(_ context.Context, jobID string, status models.JobStatus, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.NextRun = nextRun
	return nil
}

func (s *memStore) StaleExecutions(_ context.Context, cutoff time.Time) ([]models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []models.Execution
	for _, exec := range s.execs {
		if exec.Status == models.ExecutionStatusRunning && exec.HeartbeatAt.Before(cutoff) {
			stale = append(stale, *exec)
		}
	}
	return stale, nil
}

func (s *memStore) job(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) execution(id string) models.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.execs[id]
}

func (s *memStore) checkpointHistory(id string) []models.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Counters(nil), s.checkpoints[id]...)
}

func (s *memStore) putExecution(exec models.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := exec
	s.execs[e.ID] = &e
}

func (s *memStore) putJob(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := job
	s.jobs[j.ID] = &j
}

// memSink collects audit entries in append order.
type memSink struct {
	mu      sync.Mutex
	entries []models.LogEntry
	err     error
}

func (s *memSink) AppendLog(_ context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memSink) all() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LogEntry(nil), s.entries...)
}

func (s *memSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Message
	}
	return out
}

// fakeSource yields limit records per batch with a fixed number of failures,
// and can be told to error or panic at a specific batch.
type fakeSource struct {
	total        int64
	failPerBatch int64

	errAtBatch   int // 1-based, 0 disables
	err          error
	panicAtBatch int

	onBatch func(batch int)

	mu      sync.Mutex
	batches []batchCall
}

type batchCall struct {
	offset int64
	limit  int64
}

func (f *fakeSource) TotalRecords(context.Context) (int64, error) {
	return f.total, nil
}

func (f *fakeSource) ProcessBatch(_ context.Context, offset, limit int64) (BatchResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, batchCall{offset: offset, limit: limit})
	batch := len(f.batches)
	f.mu.Unlock()

	if f.onBatch != nil {
		f.onBatch(batch)
	}
	if f.panicAtBatch > 0 && batch == f.panicAtBatch {
		panic("source blew up")
	}
	if f.errAtBatch > 0 && batch == f.errAtBatch {
		return BatchResult{}, f.err
	}

	failed := f.failPerBatch
	if failed > limit {
		failed = limit
	}
	return BatchResult{Succeeded: limit - failed, Failed: failed}, nil
}

func (f *fakeSource) calls() []batchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]batchCall(nil), f.batches...)
}

type fakeResolver struct {
	src Source
	err error
}

func (f *fakeResolver) SourceFor(context.Context, models.Job) (Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.src, nil
}

// fakeNotifier records which lifecycle notifications fired.
type fakeNotifier struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	reaped    []string
	reasons   []string
}

func (n *fakeNotifier) NotifyExecutionStarted(_ context.Context, _ models.Job, executionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, executionID)
}

func (n *fakeNotifier) NotifyExecutionCompleted(_ context.Context, _ models.Job, executionID string, _ models.Counters) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, executionID)
}

func (n *fakeNotifier) NotifyExecutionFailed(_ context.Context, _ models.Job, executionID string, errorMessage string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, executionID)
	n.reasons = append(n.reasons, errorMessage)
}

func (n *fakeNotifier) NotifyExecutionReaped(_ context.Context, _ models.Job, executionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reaped = append(n.reaped, executionID)
}

// fakePublisher records bus events.
type fakePublisher struct {
	mu     sync.Mutex
	events []ExecutionEvent
	err    error
}

func (p *fakePublisher) PublishExecutionEvent(_ context.Context, event ExecutionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) all() []ExecutionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ExecutionEvent(nil), p.events...)
}

// fakeDetached records spawn attempts and optionally refuses them.
type fakeDetached struct {
	mu       sync.Mutex
	spawned  []ExecContext
	spawnErr error
}

func (d *fakeDetached) Name() string { return "fake" }

func (d *fakeDetached) SpawnDetached(_ context.Context, ec ExecContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spawnErr != nil {
		return d.spawnErr
	}
	d.spawned = append(d.spawned, ec)
	return nil
}

func (d *fakeDetached) launches() []ExecContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ExecContext(nil), d.spawned...)
}

func activeJob(id, name string) models.Job {
	return models.Job{
		ID:       id,
		Name:     name,
		Status:   models.JobStatusIdle,
		IsActive: true,
	}
}

func testProcessorConfig() ProcessorConfig {
	return ProcessorConfig{BatchSize: 100, MilestoneInterval: 10, BatchPause: 0}
}
