package domain

import (
	"strconv"
	"strings"
)

// Status is the fine-grained lifecycle state of an imagination task.
// It follows the typical progression none → draft → init → queue → waiting →
// running → processing → done/completed, with error and cancelled as the
// remaining terminal states.
type Status string

// Fine-grained status values
const (
	StatusNone       Status = "none"
	StatusDraft      Status = "draft"
	StatusInit       Status = "init"
	StatusQueue      Status = "queue"
	StatusWaiting    Status = "waiting"
	StatusRunning    Status = "running"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// TaskStatus is the coarse status exposed on the task resource.
type TaskStatus string

// Coarse status values
const (
	TaskStatusNone       TaskStatus = "none"
	TaskStatusDraft      TaskStatus = "draft"
	TaskStatusInit       TaskStatus = "init"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// taskStatusByStatus is the deterministic fine→coarse projection.
// Note that cancelled projects to the completed bucket: a cancelled task is
// finished work from the caller's perspective.
var taskStatusByStatus = map[Status]TaskStatus{
	StatusNone:       TaskStatusNone,
	StatusDraft:      TaskStatusDraft,
	StatusInit:       TaskStatusInit,
	StatusQueue:      TaskStatusProcessing,
	StatusWaiting:    TaskStatusProcessing,
	StatusRunning:    TaskStatusProcessing,
	StatusProcessing: TaskStatusProcessing,
	StatusDone:       TaskStatusCompleted,
	StatusCompleted:  TaskStatusCompleted,
	StatusError:      TaskStatusError,
	StatusCancelled:  TaskStatusCompleted,
}

// TaskStatus projects the fine-grained status onto the coarse taxonomy.
func (s Status) TaskStatus() TaskStatus {
	if ts, ok := taskStatusByStatus[s]; ok {
		return ts
	}
	return TaskStatusNone
}

// IsDone reports whether the status is terminal. Polling stops once a task
// reaches a terminal status.
func (s Status) IsDone() bool {
	switch s {
	case StatusDone, StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus checks if the given status is part of the fine taxonomy.
func IsValidStatus(s Status) bool {
	_, ok := taskStatusByStatus[s]
	return ok
}

// ProgressUnknown is the progress value used when a provider does not report
// a percentage.
const ProgressUnknown = -1

// ClampProgress bounds a progress percentage to [-1, 100].
func ClampProgress(v int) int {
	if v < ProgressUnknown {
		return ProgressUnknown
	}
	if v > 100 {
		return 100
	}
	return v
}

// ParseProgress converts a provider-reported progress value into a clamped
// percentage. Providers report progress as "57", "57%" or not at all; an empty
// or unparseable value maps to ProgressUnknown.
func ParseProgress(raw string) int {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if raw == "" {
		return ProgressUnknown
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return ProgressUnknown
	}
	return ClampProgress(v)
}
