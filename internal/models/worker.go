package models

import "time"

// WorkerStatus is the lifecycle state of a Worker.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusIdle     WorkerStatus = "idle"
	WorkerStatusBusy     WorkerStatus = "busy"
	WorkerStatusStale    WorkerStatus = "stale"
	WorkerStatusDead     WorkerStatus = "dead"
)

// Worker is one long-running process claiming and executing tasks inside
// an isolated checkout.
type Worker struct {
	WorkerID  string
	RunID     string
	WorkerNum int // 1..N, short human-facing ordinal

	PID        int
	Branch     string
	WorkDir    string
	Status     WorkerStatus
	CurrentTask string // nullable: task_id, empty when not busy

	StartedAt       time.Time
	LastHeartbeatAt time.Time
}

// IsBusy reports whether the worker currently holds a task.
func (w *Worker) IsBusy() bool {
	return w.Status == WorkerStatusBusy
}

// StaleSince reports how long it has been since the worker's last
// heartbeat, relative to now.
func (w *Worker) StaleSince(now time.Time) time.Duration {
	return now.Sub(w.LastHeartbeatAt)
}
