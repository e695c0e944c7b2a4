package engine

import (
	"fmt"

	"github.com/railyard/railyard-api/internal/models"
)

// DefaultFailureThreshold is the fraction of the workload allowed to fail
// before a run is classified as failed.
const DefaultFailureThreshold = 0.05

// Outcome is the classification of a finished run.
type Outcome struct {
	Status       models.ExecutionStatus
	ErrorMessage string
}

// ClassifyOutcome is a pure function of the final counters. A run completes
// when its failures stay strictly under threshold*total; at 1000 records and
// the default threshold, 49 failures complete and 50 fail. Runs without any
// failure always complete, so empty workloads count as success.
func ClassifyOutcome(c models.Counters, totalRecords int64, threshold float64) Outcome {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if c.Failed == 0 || float64(c.Failed) < float64(totalRecords)*threshold {
		return Outcome{Status: models.ExecutionStatusCompleted}
	}
	return Outcome{
		Status: models.ExecutionStatusFailed,
		ErrorMessage: fmt.Sprintf("failure threshold exceeded: %d of %d records failed (limit %.0f%%)",
			c.Failed, totalRecords, threshold*100),
	}
}
