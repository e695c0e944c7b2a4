package models

import (
	"encoding/json"
	"time"
)

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one row of the append-only audit trail. Entries are never
// updated or deleted after insert.
type LogEntry struct {
	ID          string          `json:"id" db:"id"`
	JobID       *string         `json:"job_id,omitempty" db:"job_id"`
	ExecutionID *string         `json:"execution_id,omitempty" db:"execution_id"`
	SourceID    *string         `json:"source_id,omitempty" db:"source_id"`
	Level       LogLevel        `json:"level" db:"level"`
	Message     string          `json:"message" db:"message"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
