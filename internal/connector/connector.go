// Package connector maps a job's source connection onto an engine source.
package connector

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/engine"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// ConnectionGetter is the slice of the connection store the registry needs.
type ConnectionGetter interface {
	Get(ctx context.Context, id string) (*models.Connection, error)
}

// Registry resolves sources by connection data format. All formats are
// currently served by the deterministic simulator; native drivers register
// here when an integration ships one.
type Registry struct {
	connections ConnectionGetter
	logger      zerolog.Logger
}

func NewRegistry(connections ConnectionGetter, logger zerolog.Logger) *Registry {
	return &Registry{
		connections: connections,
		logger:      logger.With().Str("component", "connector_registry").Logger(),
	}
}

// Formats lists the data formats the registry accepts.
func (r *Registry) Formats() []string {
	return []string{"postgres", "mysql", "csv", "sim"}
}

// Supports reports whether the format can back a connection.
func (r *Registry) Supports(format string) bool {
	for _, f := range r.Formats() {
		if f == format {
			return true
		}
	}
	return false
}

func (r *Registry) SourceFor(ctx context.Context, job models.Job) (engine.Source, error) {
	if job.SourceConnectionID == "" {
		return nil, errors.New("job has no source connection")
	}
	conn, err := r.connections.Get(ctx, job.SourceConnectionID)
	if err != nil {
		return nil, errors.Wrap(err, "load source connection")
	}
	if conn == nil {
		return nil, errors.Errorf("source connection %s not found", job.SourceConnectionID)
	}
	return r.sourceForConnection(*conn, job.TransformSpec)
}

// Probe resolves a source directly for a connection and reads its record
// volume; connection tests use it.
func (r *Registry) Probe(ctx context.Context, conn models.Connection) (int64, error) {
	src, err := r.sourceForConnection(conn, nil)
	if err != nil {
		return 0, err
	}
	return src.TotalRecords(ctx)
}

func (r *Registry) sourceForConnection(conn models.Connection, rawSpec json.RawMessage) (engine.Source, error) {
	format := models.NormalizeDataFormat(conn.DataFormat)
	if !r.Supports(format) {
		return nil, errors.Errorf("unsupported data format %q", conn.DataFormat)
	}
	spec, err := ParseTransformSpec(rawSpec)
	if err != nil {
		return nil, err
	}
	return NewSimulatedSource(conn, spec), nil
}

// TransformSpec is the parsed shape of a job's transform document. Only the
// fields the engine consumes are modeled here.
type TransformSpec struct {
	Query      string          `json:"query,omitempty"`
	Simulation *SimulationSpec `json:"simulation,omitempty"`
}

// SimulationSpec tunes the built-in source: an optional record volume
// override and a deterministic per-batch failure rate.
type SimulationSpec struct {
	Records     int64   `json:"records,omitempty"`
	FailureRate float64 `json:"failure_rate,omitempty"`
}

func ParseTransformSpec(raw json.RawMessage) (TransformSpec, error) {
	var s TransformSpec
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return TransformSpec{}, errors.Wrap(err, "parse transform spec")
	}
	if s.Simulation != nil {
		if s.Simulation.FailureRate < 0 || s.Simulation.FailureRate > 1 {
			return TransformSpec{}, errors.Errorf("simulation failure_rate %v out of range [0,1]", s.Simulation.FailureRate)
		}
		if s.Simulation.Records < 0 {
			return TransformSpec{}, errors.New("simulation records cannot be negative")
		}
	}
	return s, nil
}
