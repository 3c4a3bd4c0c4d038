// Package models defines the persistent record types shared by every
// component through the coordination store: runs, tasks, workers, and
// file locks.
package models

import "time"

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// SourceKind distinguishes a plan-backed run from a prompt-backed one.
type SourceKind string

const (
	SourcePlan   SourceKind = "plan"
	SourcePrompt SourceKind = "prompt"
)

// Run is one invocation of the orchestrator against a plan or prompt.
// RunID is lexicographically time-sortable (minted from ULID).
type Run struct {
	RunID         string
	Status        RunStatus
	SourceKind    SourceKind
	SourcePath    string // plan file path, empty for prompt-mode runs
	SourceText    string // prompt text, empty for plan-mode runs
	SourceHash    string // content hash used for resume/active-run detection
	WorkerCount   int
	TotalTasks    int
	CompletedTasks int
	FailedTasks   int
	SkippedTasks  int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// IsTerminal reports whether the run has stopped changing.
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusStopped:
		return true
	default:
		return false
	}
}
