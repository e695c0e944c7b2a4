package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

type Job struct {
	ID                 string          `json:"id" db:"id"`
	Name               string          `json:"name" db:"name"`
	SourceConnectionID string          `json:"source_connection_id" db:"source_connection_id"`
	TargetConnectionID string          `json:"target_connection_id" db:"target_connection_id"`
	TransformSpec      json.RawMessage `json:"transform_spec,omitempty" db:"transform_spec"`
	Schedule           *string         `json:"schedule,omitempty" db:"schedule"`
	Status             JobStatus       `json:"status" db:"status"`
	LastRun            *time.Time      `json:"last_run" db:"last_run"`
	NextRun            *time.Time      `json:"next_run" db:"next_run"`
	IsActive           bool            `json:"is_active" db:"is_active"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// Counters are the per-execution progress counters. Processed always equals
// Succeeded + Failed; Validated trails Processed at a fixed ratio.
type Counters struct {
	Processed int64 `json:"records_processed" db:"records_processed"`
	Succeeded int64 `json:"records_succeeded" db:"records_succeeded"`
	Failed    int64 `json:"records_failed" db:"records_failed"`
	Validated int64 `json:"records_validated" db:"records_validated"`
}

type Execution struct {
	ID          string          `json:"id" db:"id"`
	JobID       string          `json:"job_id" db:"job_id"`
	Status      ExecutionStatus `json:"status" db:"status"`
	StartedAt   time.Time       `json:"started_at" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at" db:"completed_at"`
	Counters
	ErrorMessage *string   `json:"error_message" db:"error_message"`
	HeartbeatAt  time.Time `json:"heartbeat_at" db:"heartbeat_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
