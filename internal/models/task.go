package models

import "time"

// TaskState is the backend-reported lifecycle state of one report generation job.
// The backend may report values beyond the ones named here; anything that is
// not terminal counts as still running.
type TaskState string

const (
	TaskStatePending TaskState = "PENDING"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateFailed  TaskState = "FAILED"
)

// Terminal reports whether no further progress changes are expected.
func (s TaskState) Terminal() bool {
	return s == TaskStateSuccess || s == TaskStateFailed
}

// TaskStatus is a single status reading for a task handle.
type TaskStatus struct {
	Status   TaskState `json:"status"`
	Progress int       `json:"progress"`
}

// PollerState captures the progress poller lifecycle.
type PollerState string

const (
	PollerStateIdle      PollerState = "IDLE"
	PollerStateRunning   PollerState = "RUNNING"
	PollerStateCompleted PollerState = "COMPLETED"
)

// PollSnapshot is the poller's view as of the most recent applied tick.
type PollSnapshot struct {
	TaskIDs    []string    `json:"taskIds"`
	State      PollerState `json:"state"`
	Progress   int         `json:"progress"`
	Total      int         `json:"total"`
	Done       int         `json:"done"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Running    int         `json:"running"`
	Ticks      int         `json:"ticks"`
	LastTickAt *time.Time  `json:"lastTickAt,omitempty"`
}
