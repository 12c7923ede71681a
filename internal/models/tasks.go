package models

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusUnknown   TaskStatus = "unknown"
)

var statusAliases = map[string]TaskStatus{
	"queued":      TaskStatusQueued,
	"pending":     TaskStatusQueued,
	"submitted":   TaskStatusQueued,
	"created":     TaskStatusQueued,
	"running":     TaskStatusRunning,
	"processing":  TaskStatusRunning,
	"in_progress": TaskStatusRunning,
	"generating":  TaskStatusRunning,
	"completed":   TaskStatusCompleted,
	"succeeded":   TaskStatusCompleted,
	"success":     TaskStatusCompleted,
	"done":        TaskStatusCompleted,
	"failed":      TaskStatusFailed,
	"error":       TaskStatusFailed,
	"cancelled":   TaskStatusFailed,
	"canceled":    TaskStatusFailed,
	"expired":     TaskStatusFailed,
}

// ParseTaskStatus maps a vendor status string onto the local enumeration.
func ParseTaskStatus(raw string) TaskStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	if status, ok := statusAliases[key]; ok {
		return status
	}
	return TaskStatusUnknown
}

// IsTerminal reports whether no further transition can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Rank orders statuses along the lifecycle. Unknown ranks below queued so it
// never displaces a status that was already accepted.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusQueued:
		return 1
	case TaskStatusRunning:
		return 2
	case TaskStatusCompleted, TaskStatusFailed:
		return 3
	default:
		return 0
	}
}

// Advance returns the status the task should hold after observing next.
// The result never ranks lower than current, and a terminal status is final.
func (s TaskStatus) Advance(next TaskStatus) TaskStatus {
	if s.IsTerminal() {
		return s
	}
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

// Task mirrors a remote generation job. The remote service owns it; the local
// copy exists for display and logging.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	RawStatus string     `json:"raw_status,omitempty"`
	Progress  *float64   `json:"progress,omitempty"`
	VideoURL  string     `json:"video_url,omitempty"`
	Model     string     `json:"model,omitempty"`
	Seconds   string     `json:"seconds,omitempty"`
	Size      string     `json:"size,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// PollResult is a point-in-time snapshot of a task's status.
type PollResult struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	RawStatus  string     `json:"raw_status"`
	Progress   *float64   `json:"progress,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
}
