package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/models"
)

// ErrJobRunning guards deletes of jobs that still have a run in flight.
var ErrJobRunning = errors.New("job has a running execution")

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	JobID  string
	Status string
	Limit  int
	Offset int
}

type JobRepository interface {
	// Engine store surface: claim, progress, finish, reap.
	engine.Store

	// Job definition methods
	CreateJob(ctx context.Context, job models.Job) (models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	UpdateJob(ctx context.Context, job models.Job) (models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	ListJobStats(ctx context.Context) ([]models.JobStat, error)

	// Execution methods
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]models.Execution, error)
	ExecutionStats(ctx context.Context, days int) (models.ExecutionStats, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, name, source_connection_id, target_connection_id, transform_spec, schedule, status, last_run, next_run, is_active, created_at, updated_at`

func (r *jobRepository) CreateJob(ctx context.Context, job models.Job) (models.Job, error) {
	// The SELECT guards against dangling connection references.
	query := `
		INSERT INTO jobs (id, name, source_connection_id, target_connection_id, transform_spec, schedule, status, is_active)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		FROM connections sc, connections tc
		WHERE sc.id = $3 AND tc.id = $4
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		job.ID,
		job.Name,
		job.SourceConnectionID,
		job.TargetConnectionID,
		nullJSON(job.TransformSpec),
		job.Schedule,
		models.JobStatusIdle,
		job.IsActive,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return models.Job{}, err
	}
	job.Status = models.JobStatusIdle
	return job, nil
}

func (r *jobRepository) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, engine.ErrJobNotFound
		}
		return models.Job{}, err
	}
	return job, nil
}

func (r *jobRepository) ListJobs(ctx context.Context) ([]models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) UpdateJob(ctx context.Context, job models.Job) (models.Job, error) {
	// Status is engine-owned and deliberately not updatable here.
	query := `
		UPDATE jobs
		SET name = $2,
		    source_connection_id = $3,
		    target_connection_id = $4,
		    transform_spec = $5,
		    schedule = $6,
		    is_active = $7,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + jobColumns + `
	`
	updated, err := scanJob(r.db.QueryRowContext(ctx, query,
		job.ID,
		job.Name,
		job.SourceConnectionID,
		job.TargetConnectionID,
		nullJSON(job.TransformSpec),
		job.Schedule,
		job.IsActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, engine.ErrJobNotFound
		}
		return models.Job{}, err
	}
	return updated, nil
}

// DeleteJob refuses to remove a job while an execution is in flight.
func (r *jobRepository) DeleteJob(ctx context.Context, jobID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1 AND status <> $2`, jobID, models.JobStatusRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetJob(ctx, jobID); err != nil {
		return err
	}
	return ErrJobRunning
}

// BeginExecution claims the job row and opens the execution in a single
// transaction; the conditional UPDATE is what serializes concurrent
// triggers on one job.
func (r *jobRepository) BeginExecution(ctx context.Context, exec models.Execution) (models.Execution, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Execution{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, last_run = $3, updated_at = NOW()
		WHERE id = $1 AND is_active AND status <> $2`,
		exec.JobID, models.JobStatusRunning, exec.StartedAt,
	)
	if err != nil {
		return models.Execution{}, errors.Wrap(err, "claim job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Execution{}, err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, exec.JobID).Scan(&exists); err != nil {
			return models.Execution{}, err
		}
		if !exists {
			return models.Execution{}, engine.ErrJobNotFound
		}
		return models.Execution{}, engine.ErrJobNotRunnable
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO executions (id, job_id, status, started_at, heartbeat_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING created_at, updated_at`,
		exec.ID, exec.JobID, models.ExecutionStatusRunning, exec.StartedAt,
	).Scan(&exec.CreatedAt, &exec.UpdatedAt)
	if err != nil {
		return models.Execution{}, errors.Wrap(err, "insert execution")
	}

	if err := tx.Commit(); err != nil {
		return models.Execution{}, errors.Wrap(err, "commit")
	}
	exec.Status = models.ExecutionStatusRunning
	return exec, nil
}

const executionColumns = `id, job_id, status, started_at, completed_at, records_processed, records_succeeded, records_failed, records_validated, error_message, heartbeat_at, created_at, updated_at`

func (r *jobRepository) GetExecution(ctx context.Context, executionID string) (models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE id = $1
	`
	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Execution{}, engine.ErrExecutionNotFound
		}
		return models.Execution{}, err
	}
	return exec, nil
}

func (r *jobRepository) SaveProgress(ctx context.Context, executionID string, c models.Counters, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET records_processed = $2,
		    records_succeeded = $3,
		    records_failed = $4,
		    records_validated = $5,
		    heartbeat_at = $6,
		    updated_at = NOW()
		WHERE id = $1 AND status = $7`,
		executionID, c.Processed, c.Succeeded, c.Failed, c.Validated, at, models.ExecutionStatusRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *jobRepository) FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errorMessage *string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $2,
		    completed_at = $3,
		    error_message = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = $5`,
		executionID, status, at, errorMessage, models.ExecutionStatusRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *jobRepository) SettleJob(ctx context.Context, jobID string, status models.JobStatus, nextRun *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, next_run = $3, updated_at = NOW()
		WHERE id = $1`,
		jobID, status, nextRun,
	)
	return err
}

func (r *jobRepository) StaleExecutions(ctx context.Context, cutoff time.Time) ([]models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = $1 AND heartbeat_at < $2
		ORDER BY heartbeat_at ASC
		LIMIT 100
	`
	rows, err := r.db.QueryContext(ctx, query, models.ExecutionStatusRunning, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (r *jobRepository) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE 1=1
	`
	args := []interface{}{}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		query += fmt.Sprintf(" AND job_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (r *jobRepository) ExecutionStats(ctx context.Context, days int) (models.ExecutionStats, error) {
	if days <= 0 {
		days = 30
	}

	const perDayQuery = `
		WITH days AS (
			SELECT generate_series(
				(current_date - ($1 - 1) * INTERVAL '1 day'),
				current_date,
				'1 day'::INTERVAL
			) AS day
		)
		SELECT
			days.day,
			COALESCE(SUM((e.status = 'completed')::int), 0) AS completed,
			COALESCE(SUM((e.status = 'failed')::int), 0)    AS failed,
			COALESCE(SUM((e.status = 'running')::int), 0)   AS running
		FROM days
		LEFT JOIN executions e ON e.started_at::DATE = days.day
		GROUP BY days.day
		ORDER BY days.day;
	`
	rows, err := r.db.QueryContext(ctx, perDayQuery, days)
	if err != nil {
		return models.ExecutionStats{}, fmt.Errorf("ExecutionStats per-day query error: %w", err)
	}
	defer rows.Close()

	var perDay []models.ExecutionStatDay
	for rows.Next() {
		var day models.ExecutionStatDay
		if err := rows.Scan(&day.Day, &day.Completed, &day.Failed, &day.Running); err != nil {
			return models.ExecutionStats{}, fmt.Errorf("ExecutionStats per-day scan error: %w", err)
		}
		perDay = append(perDay, day)
	}
	if err := rows.Err(); err != nil {
		return models.ExecutionStats{}, err
	}

	const totalQuery = `
		SELECT
			COALESCE(COUNT(*), 0)                         AS total,
			COALESCE(SUM((status = 'completed')::int), 0) AS completed,
			COALESCE(SUM((status = 'failed')::int), 0)    AS failed,
			COALESCE(SUM((status = 'running')::int), 0)   AS running,
			COALESCE(SUM(records_processed), 0)           AS records_processed
		FROM executions;
	`
	var stats models.ExecutionStats
	row := r.db.QueryRowContext(ctx, totalQuery)
	if err := row.Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Running, &stats.RecordsProcessed); err != nil {
		return models.ExecutionStats{}, fmt.Errorf("ExecutionStats total scan error: %w", err)
	}

	var totalJobs int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(COUNT(*), 0) FROM jobs`).Scan(&totalJobs); err != nil {
		return models.ExecutionStats{}, fmt.Errorf("ExecutionStats job count scan error: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100.0
	}
	stats.TotalJobs = totalJobs
	stats.PerDay = perDay
	return stats, nil
}

func (r *jobRepository) ListJobStats(ctx context.Context) ([]models.JobStat, error) {
	const query = `
		WITH ranked_executions AS (
			SELECT
				job_id,
				status,
				records_processed,
				EXTRACT(EPOCH FROM (completed_at - started_at)) AS duration_seconds,
				ROW_NUMBER() OVER (PARTITION BY job_id ORDER BY started_at DESC) AS run_rank
			FROM executions
		)
		SELECT
			j.id, j.name, j.source_connection_id, j.target_connection_id, j.transform_spec,
			j.schedule, j.status, j.last_run, j.next_run, j.is_active, j.created_at, j.updated_at,
			COALESCE(stats.total_runs, 0)                 AS total_runs,
			stats.last_run_status,
			COALESCE(stats.total_records_processed, 0)    AS total_records_processed,
			stats.avg_duration_seconds
		FROM jobs j
		LEFT JOIN (
			SELECT
				job_id,
				COUNT(*) AS total_runs,
				MAX(CASE WHEN run_rank = 1 THEN status END) AS last_run_status,
				SUM(records_processed) AS total_records_processed,
				AVG(duration_seconds) AS avg_duration_seconds
			FROM ranked_executions
			GROUP BY job_id
		) stats ON j.id = stats.job_id
		ORDER BY j.created_at DESC;
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.JobStat{}
	for rows.Next() {
		var (
			stat          models.JobStat
			transformSpec []byte
			schedule      sql.NullString
			lastRun       sql.NullTime
			nextRun       sql.NullTime
			lastRunStatus sql.NullString
			avgDuration   sql.NullFloat64
		)
		if err := rows.Scan(
			&stat.Job.ID,
			&stat.Job.Name,
			&stat.Job.SourceConnectionID,
			&stat.Job.TargetConnectionID,
			&transformSpec,
			&schedule,
			&stat.Job.Status,
			&lastRun,
			&nextRun,
			&stat.Job.IsActive,
			&stat.Job.CreatedAt,
			&stat.Job.UpdatedAt,
			&stat.TotalRuns,
			&lastRunStatus,
			&stat.TotalRecordsProcessed,
			&avgDuration,
		); err != nil {
			return nil, err
		}
		stat.Job.TransformSpec = transformSpec
		stat.Job.Schedule = nullStringPtr(schedule)
		stat.Job.LastRun = nullTimePtr(lastRun)
		stat.Job.NextRun = nullTimePtr(nextRun)
		stat.LastRunStatus = nullStringPtr(lastRunStatus)
		if avgDuration.Valid {
			stat.AvgDurationSeconds = &avgDuration.Float64
		}
		results = append(results, stat)
	}
	return results, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (models.Job, error) {
	var (
		job           models.Job
		transformSpec []byte
		schedule      sql.NullString
		lastRun       sql.NullTime
		nextRun       sql.NullTime
	)
	err := s.Scan(
		&job.ID,
		&job.Name,
		&job.SourceConnectionID,
		&job.TargetConnectionID,
		&transformSpec,
		&schedule,
		&job.Status,
		&lastRun,
		&nextRun,
		&job.IsActive,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return models.Job{}, err
	}
	job.TransformSpec = transformSpec
	job.Schedule = nullStringPtr(schedule)
	job.LastRun = nullTimePtr(lastRun)
	job.NextRun = nullTimePtr(nextRun)
	return job, nil
}

func scanExecution(s scanner) (models.Execution, error) {
	var (
		exec        models.Execution
		completedAt sql.NullTime
		errMessage  sql.NullString
	)
	err := s.Scan(
		&exec.ID,
		&exec.JobID,
		&exec.Status,
		&exec.StartedAt,
		&completedAt,
		&exec.Processed,
		&exec.Succeeded,
		&exec.Failed,
		&exec.Validated,
		&errMessage,
		&exec.HeartbeatAt,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		return models.Execution{}, err
	}
	exec.CompletedAt = nullTimePtr(completedAt)
	exec.ErrorMessage = nullStringPtr(errMessage)
	return exec, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
