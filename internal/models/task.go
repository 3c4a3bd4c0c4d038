package models

import "time"

// TaskStatus is the lifecycle state of a Task. Transitions follow
// pending -> in_progress -> (completed | failed | skipped).
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// IsTerminal reports whether a task in this status will never change again
// without external intervention (retry_failed).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Task is one unit of agent work within a run.
type Task struct {
	TaskID      string
	RunID       string
	Text        string // instruction given to the agent
	ContentHash string // used for resume matching against worker commit logs

	Status         TaskStatus
	AssignedWorker string // nullable: worker_id, empty when not in_progress

	Priority int // lower runs earlier; equal priorities may run in parallel

	PredictedFiles []string // ordered glob patterns, advisory locks
	ActualFiles    []string // recorded after execution

	PlanLine int // optional back-reference into the source plan; 0 if none

	AttemptCount int
	MaxAttempts  int
	LastError    string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// CanRetry reports whether a failed task may be returned to pending.
func (t *Task) CanRetry() bool {
	return t.AttemptCount < t.MaxAttempts
}

// HasWorker reports whether the task is currently claimed.
// Invariant (§3): a task has a non-null worker iff status = in_progress.
func (t *Task) HasWorker() bool {
	return t.AssignedWorker != ""
}
