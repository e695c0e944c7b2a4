package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

var severityRank = map[NotificationSeverity]int{
	NotificationSeverityInfo:    1,
	NotificationSeverityWarning: 2,
	NotificationSeverityError:   3,
}

func IsValidSeverity(s NotificationSeverity) bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether the severity meets the given floor. Unknown
// severities rank below info.
func (s NotificationSeverity) AtLeast(floor NotificationSeverity) bool {
	return severityRank[s] >= severityRank[floor]
}

type NotificationEvent string

const (
	NotificationEventExecutionStarted   NotificationEvent = "execution_started"
	NotificationEventExecutionCompleted NotificationEvent = "execution_completed"
	NotificationEventExecutionFailed    NotificationEvent = "execution_failed"
	NotificationEventExecutionReaped    NotificationEvent = "execution_reaped"
)

type Notification struct {
	ID        string               `json:"id" db:"id"`
	EventType NotificationEvent    `json:"event_type" db:"event_type"`
	Severity  NotificationSeverity `json:"severity" db:"severity"`
	Title     string               `json:"title" db:"title"`
	Message   string               `json:"message" db:"message"`
	Metadata  json.RawMessage      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	ReadAt    *time.Time           `json:"read_at,omitempty" db:"read_at"`
}
