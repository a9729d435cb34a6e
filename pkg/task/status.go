package task

import "strings"

// Status is the lifecycle status of a remote task.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input-required"
	StatusCompleted     Status = "completed"
	StatusCanceled      Status = "canceled"
	StatusFailed        Status = "failed"
	StatusRejected      Status = "rejected"
	StatusAuthRequired  Status = "auth-required"
	StatusUnknown       Status = "unknown"
)

// ParseStatus normalizes a status string reported by a remote agent.
// Underscores are accepted in place of dashes, the British spelling of
// "cancelled" is accepted, and anything unrecognized maps to StatusUnknown.
func ParseStatus(s string) Status {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.TrimPrefix(normalized, "task-state-")

	switch Status(normalized) {
	case StatusSubmitted, StatusWorking, StatusInputRequired, StatusCompleted,
		StatusCanceled, StatusFailed, StatusRejected, StatusAuthRequired:
		return Status(normalized)
	}
	if normalized == "cancelled" {
		return StatusCanceled
	}
	return StatusUnknown
}

// IsTerminal reports whether no further status changes will follow.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusFailed, StatusRejected:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the task finished successfully.
func (s Status) IsSuccess() bool {
	return s == StatusCompleted
}

// IsPending reports whether the task is still running on the remote side
// and its result will arrive later.
func (s Status) IsPending() bool {
	return s == StatusSubmitted || s == StatusWorking
}

func (s Status) String() string {
	return string(s)
}
