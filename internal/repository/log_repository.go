package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/railyard/railyard-api/internal/models"
)

// LogFilter narrows ListLogs.
type LogFilter struct {
	JobID       string
	ExecutionID string
	Level       string
	Limit       int
	Offset      int
}

// LogRepository is the append-only audit store. Entries are inserted once
// and never updated or deleted.
type LogRepository interface {
	AppendLog(ctx context.Context, entry models.LogEntry) error
	ListLogs(ctx context.Context, filter LogFilter) ([]models.LogEntry, error)
}

type logRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) AppendLog(ctx context.Context, entry models.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO logs (id, job_id, execution_id, source_id, level, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.JobID,
		entry.ExecutionID,
		entry.SourceID,
		entry.Level,
		entry.Message,
		nullJSON(entry.Details),
		entry.CreatedAt,
	)
	return err
}

func (r *logRepository) ListLogs(ctx context.Context, filter LogFilter) ([]models.LogEntry, error) {
	query := `
		SELECT id, job_id, execution_id, source_id, level, message, details, created_at
		FROM logs
		WHERE 1=1
	`
	args := []interface{}{}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		query += fmt.Sprintf(" AND job_id = $%d", len(args))
	}
	if filter.ExecutionID != "" {
		args = append(args, filter.ExecutionID)
		query += fmt.Sprintf(" AND execution_id = $%d", len(args))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		query += fmt.Sprintf(" AND level = $%d", len(args))
	}

	// An execution trail reads chronologically; the global feed reads
	// newest first.
	if filter.ExecutionID != "" {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var (
			entry   models.LogEntry
			jobID   sql.NullString
			execID  sql.NullString
			srcID   sql.NullString
			details []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&jobID,
			&execID,
			&srcID,
			&entry.Level,
			&entry.Message,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.JobID = nullStringPtr(jobID)
		entry.ExecutionID = nullStringPtr(execID)
		entry.SourceID = nullStringPtr(srcID)
		entry.Details = details
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
