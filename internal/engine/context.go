package engine

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EnvExecContext is the environment variable a detached runner reads its
// execution context from.
const EnvExecContext = "RAILYARD_EXEC_CONTEXT"

// ExecContext is the complete startup context of one run. It is serialized
// and handed to the launched unit; a run never consults ambient process
// state beyond it.
type ExecContext struct {
	ExecutionID string            `json:"execution_id"`
	JobID       string            `json:"job_id"`
	Flags       map[string]string `json:"flags,omitempty"`
}

func (c ExecContext) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "encode execution context")
	}
	return string(b), nil
}

func DecodeExecContext(raw string) (ExecContext, error) {
	var c ExecContext
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return ExecContext{}, errors.Wrap(err, "decode execution context")
	}
	if c.ExecutionID == "" || c.JobID == "" {
		return ExecContext{}, errors.New("execution context is missing ids")
	}
	return c, nil
}
