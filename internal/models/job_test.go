package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatusTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
}
