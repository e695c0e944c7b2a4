package models

import "time"

// ExecutionStatDay holds execution counts for a single day.
type ExecutionStatDay struct {
	Day       time.Time `json:"day" db:"day"`
	Completed int       `json:"completed" db:"completed"`
	Failed    int       `json:"failed" db:"failed"`
	Running   int       `json:"running" db:"running"`
}

// ExecutionStats is the aggregate over a period plus per-day breakdown.
type ExecutionStats struct {
	Total            int                `json:"total" db:"total"`
	Completed        int                `json:"completed" db:"completed"`
	Failed           int                `json:"failed" db:"failed"`
	Running          int                `json:"running" db:"running"`
	SuccessRate      float64            `json:"success_rate" db:"success_rate"` // completed/total
	TotalJobs        int                `json:"total_jobs" db:"total_jobs"`
	RecordsProcessed int64              `json:"records_processed" db:"records_processed"`
	PerDay           []ExecutionStatDay `json:"per_day" db:"per_day"`
}

type JobStat struct {
	Job

	TotalRuns             int64    `json:"total_runs" db:"total_runs"`
	LastRunStatus         *string  `json:"last_run_status" db:"last_run_status"`
	TotalRecordsProcessed int64    `json:"total_records_processed" db:"total_records_processed"`
	AvgDurationSeconds    *float64 `json:"avg_duration_seconds" db:"avg_duration_seconds"`
}
