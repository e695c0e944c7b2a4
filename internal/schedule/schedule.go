// Package schedule validates job schedule expressions and computes next run
// times.
package schedule

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that the expression is a parseable five-field cron spec or
// an @-descriptor. Empty means the job runs on demand only.
func Validate(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	if _, err := parser.Parse(expr); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", expr)
	}
	return nil
}

// NextRun returns when a scheduled job should run again after from, or nil
// for on-demand jobs. Scheduled jobs are currently re-queued a fixed hour
// out.
// TODO: evaluate the parsed cron expression once the scheduler loop lands.
func NextRun(expr string, from time.Time) *time.Time {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	next := from.Add(time.Hour)
	return &next
}
