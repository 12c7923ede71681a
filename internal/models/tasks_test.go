package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTaskStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want TaskStatus
	}{
		{"queued", TaskStatusQueued},
		{"Pending", TaskStatusQueued},
		{"processing", TaskStatusRunning},
		{"in-progress", TaskStatusRunning},
		{" completed ", TaskStatusCompleted},
		{"succeeded", TaskStatusCompleted},
		{"failed", TaskStatusFailed},
		{"cancelled", TaskStatusFailed},
		{"", TaskStatusUnknown},
		{"warming-up", TaskStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTaskStatus(tt.raw))
		})
	}
}

func TestAdvanceNeverMovesBackward(t *testing.T) {
	assert.Equal(t, TaskStatusRunning, TaskStatusQueued.Advance(TaskStatusRunning))
	assert.Equal(t, TaskStatusRunning, TaskStatusRunning.Advance(TaskStatusQueued))
	assert.Equal(t, TaskStatusRunning, TaskStatusRunning.Advance(TaskStatusUnknown))
	assert.Equal(t, TaskStatusQueued, TaskStatusUnknown.Advance(TaskStatusQueued))
	assert.Equal(t, TaskStatusCompleted, TaskStatusQueued.Advance(TaskStatusCompleted))
}

func TestAdvanceTerminalIsFinal(t *testing.T) {
	assert.Equal(t, TaskStatusCompleted, TaskStatusCompleted.Advance(TaskStatusFailed))
	assert.Equal(t, TaskStatusFailed, TaskStatusFailed.Advance(TaskStatusCompleted))
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.False(t, TaskStatusUnknown.IsTerminal())
}
