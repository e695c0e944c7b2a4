package connector

import (
	"context"

	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/models"
)

// SimulatedSource is a deterministic stand-in for a native driver. It
// serves the connection's declared record volume batch by batch, failing
// floor(batch * failureRate) records per batch, so a given job always
// produces the same counters.
type SimulatedSource struct {
	total       int64
	failureRate float64
}

func NewSimulatedSource(conn models.Connection, spec TransformSpec) *SimulatedSource {
	total := conn.RecordCount
	rate := 0.0
	if spec.Simulation != nil {
		if spec.Simulation.Records > 0 {
			total = spec.Simulation.Records
		}
		rate = spec.Simulation.FailureRate
	}
	if total < 0 {
		total = 0
	}
	return &SimulatedSource{total: total, failureRate: rate}
}

func (s *SimulatedSource) TotalRecords(_ context.Context) (int64, error) {
	return s.total, nil
}

func (s *SimulatedSource) ProcessBatch(ctx context.Context, _, limit int64) (engine.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return engine.BatchResult{}, err
	}
	if limit < 0 {
		limit = 0
	}
	failed := int64(float64(limit) * s.failureRate)
	if failed > limit {
		failed = limit
	}
	return engine.BatchResult{Succeeded: limit - failed, Failed: failed}, nil
}
