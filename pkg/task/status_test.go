package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"completed", StatusCompleted},
		{"COMPLETED", StatusCompleted},
		{"input_required", StatusInputRequired},
		{"input-required", StatusInputRequired},
		{"auth_required", StatusAuthRequired},
		{"cancelled", StatusCanceled},
		{"TASK_STATE_WORKING", StatusWorking},
		{" submitted ", StatusSubmitted},
		{"bogus", StatusUnknown},
		{"", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCanceled, StatusFailed, StatusRejected}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}

	nonTerminal := []Status{StatusSubmitted, StatusWorking, StatusInputRequired, StatusAuthRequired, StatusUnknown}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestStatus_IsPending(t *testing.T) {
	assert.True(t, StatusSubmitted.IsPending())
	assert.True(t, StatusWorking.IsPending())
	assert.False(t, StatusInputRequired.IsPending())
	assert.False(t, StatusCompleted.IsPending())
}
