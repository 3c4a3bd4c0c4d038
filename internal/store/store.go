// Package store implements the Coordination Store: the durable,
// concurrency-safe SQLite-backed record of runs, tasks, workers, and
// file locks that every other component reads and writes.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ralphswarm/swarm/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrDuplicateActiveRun is returned by StartRun when a run with the same
// source hash is already active, per the init/start_run contract in §4.1.
var ErrDuplicateActiveRun = errors.New("a run with this source hash is already active")

// ErrWrongState is returned when an operation's precondition on a
// record's status is violated (e.g. completing an already-completed
// task).
var ErrWrongState = errors.New("record is not in the expected state")

// ErrLockConflict is returned by AcquireLocks when any requested pattern
// conflicts with an existing lock; no locks are acquired in that case.
var ErrLockConflict = errors.New("one or more requested patterns conflict with an existing lock")

// Store is a handle on the coordination store's SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the coordination store at path and
// applies the embedded schema. ":memory:" is supported for tests,
// following conductor's learning.Store special-casing.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1) // a private in-memory db must not be handed to a second connection
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID mints a lexicographically time-sortable run identifier.
func NewRunID() string {
	return "run-" + ulid.Make().String()
}

// newTaskID mints a ULID-based task ID rather than a random UUID so that
// task_id sorts in creation order: §4.5 requires FIFO-in-creation
// ordering as the tie-break within a priority tier, and ClaimNextTask
// (and ListTasks) rely on a plain "ORDER BY priority ASC, task_id
// ASC" to get that for free.
func newTaskID() string   { return "task-" + ulid.Make().String() }
func newWorkerID() string { return "worker-" + uuid.NewString() }

func nowUTC() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// StartRun creates a new run record. It fails with ErrDuplicateActiveRun
// if another run with the same source hash is currently active (status
// not in a terminal state), per §3's "exactly one run is active per
// coordination-store instance per project at a given time".
func (s *Store) StartRun(ctx context.Context, kind models.SourceKind, sourcePath, sourceText, sourceHash string, workerCount int) (*models.Run, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE source_hash = ? AND status = 'running'`,
		sourceHash).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("checking for active run: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateActiveRun
	}

	run := &models.Run{
		RunID:       NewRunID(),
		Status:      models.RunStatusRunning,
		SourceKind:  kind,
		SourcePath:  sourcePath,
		SourceText:  sourceText,
		SourceHash:  sourceHash,
		WorkerCount: workerCount,
		StartedAt:   nowUTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, source_kind, source_path, source_text, source_hash, worker_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Status, run.SourceKind, run.SourcePath, run.SourceText, run.SourceHash, run.WorkerCount, formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// FindActiveRun returns the active (non-terminal) run for a source hash,
// if any — used by the orchestrator's resume detection (§4.6 step 2).
func (s *Store) FindActiveRun(ctx context.Context, sourceHash string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, source_kind, source_path, source_text, source_hash,
		       worker_count, total_tasks, completed_tasks, failed_tasks, skipped_tasks,
		       started_at, completed_at
		FROM runs WHERE source_hash = ? AND status = 'running' LIMIT 1`, sourceHash)
	return scanRun(row)
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, source_kind, source_path, source_text, source_hash,
		       worker_count, total_tasks, completed_tasks, failed_tasks, skipped_tasks,
		       started_at, completed_at
		FROM runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var r models.Run
	var startedAt string
	var completedAt sql.NullString
	err := row.Scan(&r.RunID, &r.Status, &r.SourceKind, &r.SourcePath, &r.SourceText, &r.SourceHash,
		&r.WorkerCount, &r.TotalTasks, &r.CompletedTasks, &r.FailedTasks, &r.SkippedTasks,
		&startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		r.CompletedAt = &t
	}
	return &r, nil
}

// CloseRun marks a run terminal with the given status.
func (s *Store) CloseRun(ctx context.Context, runID string, status models.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE run_id = ?`,
		status, formatTime(nowUTC()), runID)
	if err != nil {
		return fmt.Errorf("closing run %s: %w", runID, err)
	}
	return nil
}

// AddTask inserts a new pending task.
func (s *Store) AddTask(ctx context.Context, runID, text, contentHash string, priority int, predictedFiles []string, planLine, maxAttempts int) (string, error) {
	taskID := newTaskID()
	pf, err := json.Marshal(predictedFiles)
	if err != nil {
		return "", fmt.Errorf("marshaling predicted_files: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, run_id, text, content_hash, status, priority, predicted_files, plan_line, max_attempts, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?)`,
		taskID, runID, text, contentHash, priority, string(pf), planLine, maxAttempts, formatTime(nowUTC()))
	if err != nil {
		return "", fmt.Errorf("inserting task: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET total_tasks = total_tasks + 1 WHERE run_id = ?`, runID)
	if err != nil {
		return "", fmt.Errorf("updating run task count: %w", err)
	}
	return taskID, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var predictedFiles, actualFiles string
	var createdAt string
	var startedAt, completedAt sql.NullString
	err := row.Scan(&t.TaskID, &t.RunID, &t.Text, &t.ContentHash, &t.Status, &t.AssignedWorker,
		&t.Priority, &predictedFiles, &actualFiles, &t.PlanLine, &t.AttemptCount, &t.MaxAttempts,
		&t.LastError, &createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	_ = json.Unmarshal([]byte(predictedFiles), &t.PredictedFiles)
	_ = json.Unmarshal([]byte(actualFiles), &t.ActualFiles)
	t.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		st := parseTime(startedAt.String)
		t.StartedAt = &st
	}
	if completedAt.Valid {
		ct := parseTime(completedAt.String)
		t.CompletedAt = &ct
	}
	return &t, nil
}

const taskColumns = `task_id, run_id, text, content_hash, status, assigned_worker,
	priority, predicted_files, actual_files, plan_line, attempt_count, max_attempts,
	last_error, created_at, started_at, completed_at`

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	return scanTask(row)
}

// ListTasks returns every task belonging to a run, ordered by (priority,
// task_id) as the scheduler requires.
func (s *Store) ListTasks(ctx context.Context, runID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE run_id = ? ORDER BY priority ASC, task_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return out, nil
}

// ClaimNextTask atomically selects the highest-priority, lowest-id
// pending task not excluded by the caller, marks it in_progress, and
// assigns it to worker. Returns nil, nil if no eligible task exists.
// The whole operation runs inside a single transaction so two workers
// can never both claim the same row (§4.1 atomicity requirement).
func (s *Store) ClaimNextTask(ctx context.Context, runID, workerID string, excludeTaskIDs []string) (*models.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE run_id = ? AND status = 'pending'`
	args := []interface{}{runID}
	for _, id := range excludeTaskIDs {
		query += ` AND task_id != ?`
		args = append(args, id)
	}
	query += ` ORDER BY priority ASC, task_id ASC LIMIT 1`

	row := tx.QueryRowContext(ctx, query, args...)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	now := formatTime(nowUTC())
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'in_progress', assigned_worker = ?, started_at = ?
		WHERE task_id = ? AND status = 'pending'`, workerID, now, task.TaskID)
	if err != nil {
		return nil, fmt.Errorf("claiming task %s: %w", task.TaskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking claim result: %w", err)
	}
	if n == 0 {
		// Lost a race with another writer between the select and the
		// update; the caller should simply try again next tick.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	task.Status = models.TaskStatusInProgress
	task.AssignedWorker = workerID
	st := parseTime(now)
	task.StartedAt = &st
	return task, nil
}

// CompleteTask transitions a task to completed and records actual_files.
func (s *Store) CompleteTask(ctx context.Context, taskID string, actualFiles []string) error {
	af, err := json.Marshal(actualFiles)
	if err != nil {
		return fmt.Errorf("marshaling actual_files: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', actual_files = ?, completed_at = ?
		WHERE task_id = ? AND status = 'in_progress'`,
		string(af), formatTime(nowUTC()), taskID)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("completing task %s: %w", taskID, ErrWrongState)
	}
	if err := s.releaseLocksForTask(ctx, taskID); err != nil {
		return err
	}
	return s.bumpRunCounter(ctx, taskID, "completed_tasks")
}

// SkipTask transitions a task to skipped (resume-by-commit match).
func (s *Store) SkipTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'skipped', completed_at = ?
		WHERE task_id = ? AND status IN ('pending', 'in_progress')`,
		formatTime(nowUTC()), taskID)
	if err != nil {
		return fmt.Errorf("skipping task %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("skipping task %s: %w", taskID, ErrWrongState)
	}
	if err := s.releaseLocksForTask(ctx, taskID); err != nil {
		return err
	}
	return s.bumpRunCounter(ctx, taskID, "skipped_tasks")
}

// FailTask transitions a task to failed. If retryable and attempts have
// not exhausted max_attempts, the task is returned to pending with its
// attempt count incremented instead of terminally failing.
func (s *Store) FailTask(ctx context.Context, taskID, errMsg string, retryable bool) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil || task.Status != models.TaskStatusInProgress {
		return fmt.Errorf("failing task %s: %w", taskID, ErrWrongState)
	}

	newAttempt := task.AttemptCount + 1
	if retryable && newAttempt < task.MaxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET status = 'pending', assigned_worker = '', attempt_count = ?,
			                 last_error = ?, started_at = NULL
			WHERE task_id = ?`, newAttempt, errMsg, taskID)
		if err != nil {
			return fmt.Errorf("requeuing task %s: %w", taskID, err)
		}
		return s.releaseLocksForTask(ctx, taskID)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'failed', attempt_count = ?, last_error = ?, completed_at = ?
		WHERE task_id = ?`, newAttempt, errMsg, formatTime(nowUTC()), taskID)
	if err != nil {
		return fmt.Errorf("failing task %s: %w", taskID, err)
	}
	if err := s.releaseLocksForTask(ctx, taskID); err != nil {
		return err
	}
	return s.bumpRunCounter(ctx, taskID, "failed_tasks")
}

// RetryFailed resets every failed task in a run with attempts remaining
// back to pending, e.g. on operator request or orchestrator resume.
func (s *Store) RetryFailed(ctx context.Context, runID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'pending', assigned_worker = ''
		WHERE run_id = ? AND status = 'failed' AND attempt_count < max_attempts`, runID)
	if err != nil {
		return 0, fmt.Errorf("retrying failed tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) bumpRunCounter(ctx context.Context, taskID, column string) error {
	var runID string
	if err := s.db.QueryRowContext(ctx, `SELECT run_id FROM tasks WHERE task_id = ?`, taskID).Scan(&runID); err != nil {
		return fmt.Errorf("resolving run for task %s: %w", taskID, err)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE runs SET %s = %s + 1 WHERE run_id = ?`, column, column), runID)
	if err != nil {
		return fmt.Errorf("updating run counter %s: %w", column, err)
	}
	return nil
}

// RegisterWorker creates a worker record in status=starting.
func (s *Store) RegisterWorker(ctx context.Context, runID string, workerNum, pid int, branch, workDir string) (string, error) {
	workerID := newWorkerID()
	now := formatTime(nowUTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (worker_id, run_id, worker_num, pid, branch, work_dir, status, started_at, last_heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?, 'starting', ?, ?)`,
		workerID, runID, workerNum, pid, branch, workDir, now, now)
	if err != nil {
		return "", fmt.Errorf("registering worker: %w", err)
	}
	return workerID, nil
}

// Heartbeat refreshes a worker's last_heartbeat_at.
func (s *Store) Heartbeat(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET last_heartbeat_at = ? WHERE worker_id = ?`, formatTime(nowUTC()), workerID)
	if err != nil {
		return fmt.Errorf("heartbeat for %s: %w", workerID, err)
	}
	return nil
}

// SetWorkerStatus transitions a worker's status and current task.
func (s *Store) SetWorkerStatus(ctx context.Context, workerID string, status models.WorkerStatus, currentTask string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET status = ?, current_task = ? WHERE worker_id = ?`, status, currentTask, workerID)
	if err != nil {
		return fmt.Errorf("setting status for %s: %w", workerID, err)
	}
	return nil
}

func scanWorker(row rowScanner) (*models.Worker, error) {
	var w models.Worker
	var startedAt, lastHeartbeat string
	err := row.Scan(&w.WorkerID, &w.RunID, &w.WorkerNum, &w.PID, &w.Branch, &w.WorkDir,
		&w.Status, &w.CurrentTask, &startedAt, &lastHeartbeat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning worker: %w", err)
	}
	w.StartedAt = parseTime(startedAt)
	w.LastHeartbeatAt = parseTime(lastHeartbeat)
	return &w, nil
}

const workerColumns = `worker_id, run_id, worker_num, pid, branch, work_dir, status, current_task, started_at, last_heartbeat_at`

// GetWorker loads a worker by id.
func (s *Store) GetWorker(ctx context.Context, workerID string) (*models.Worker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE worker_id = ?`, workerID)
	return scanWorker(row)
}

// ListWorkers returns every worker in a run, ordered by worker_num.
func (s *Store) ListWorkers(ctx context.Context, runID string) ([]*models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE run_id = ? ORDER BY worker_num ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}
	defer rows.Close()
	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workers: %w", err)
	}
	return out, nil
}

// FindStaleWorkers returns workers whose last heartbeat predates
// staleThreshold and whose status is busy or idle.
func (s *Store) FindStaleWorkers(ctx context.Context, runID string, staleThreshold time.Duration) ([]*models.Worker, error) {
	cutoff := formatTime(nowUTC().Add(-staleThreshold))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workerColumns+` FROM workers
		WHERE run_id = ? AND last_heartbeat_at < ? AND status IN ('busy', 'idle')`, runID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("finding stale workers: %w", err)
	}
	defer rows.Close()
	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale workers: %w", err)
	}
	return out, nil
}

// AcquireLocks attempts to acquire every pattern in patterns on behalf of
// worker/task, checked against the conservative conflict rule in
// models.PatternsConflict. All-or-nothing: if any pattern conflicts with
// an existing lock, none are acquired.
func (s *Store) AcquireLocks(ctx context.Context, runID, workerID, taskID string, patterns []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning lock transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT pattern FROM file_locks WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("listing existing locks: %w", err)
	}
	var existing []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return fmt.Errorf("scanning lock pattern: %w", err)
		}
		existing = append(existing, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating existing locks: %w", err)
	}
	rows.Close()

	for _, want := range patterns {
		for _, have := range existing {
			if models.PatternsConflict(want, have) {
				return ErrLockConflict
			}
		}
	}
	// Patterns within the same request must also not conflict with each
	// other once acquired together (transitivity note, §9) — but since
	// they all originate from the same task's predicted_files, a
	// self-conflict just means two of the task's own patterns overlap,
	// which is harmless to acquire as long as the insert is idempotent
	// per pattern; guard against duplicate pattern strings only.
	seen := make(map[string]bool, len(patterns))
	now := formatTime(nowUTC())
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_locks (run_id, pattern, worker_id, task_id, acquired_at)
			VALUES (?, ?, ?, ?, ?)`, runID, p, workerID, taskID, now); err != nil {
			return fmt.Errorf("acquiring lock %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing lock acquisition: %w", err)
	}
	return nil
}

// ReleaseLocks removes every lock held by a worker.
func (s *Store) ReleaseLocks(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_locks WHERE worker_id = ?`, workerID)
	if err != nil {
		return fmt.Errorf("releasing locks for %s: %w", workerID, err)
	}
	return nil
}

func (s *Store) releaseLocksForTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_locks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("releasing locks for task %s: %w", taskID, err)
	}
	return nil
}

// ActiveLockPatterns returns every currently-held pattern in a run.
// AcquireLocks does its own conflict check and does not depend on it.
func (s *Store) ActiveLockPatterns(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern FROM file_locks WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing lock patterns: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lock patterns: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Stats holds per-status task counts for a run, used by status/inspect
// and the scheduler's completion check.
type Stats struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// AggregateStats returns per-status counts for a run.
func (s *Store) AggregateStats(ctx context.Context, runID string) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("aggregating stats: %w", err)
	}
	defer rows.Close()
	stats := &Stats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning stat row: %w", err)
		}
		stats.Total += n
		switch models.TaskStatus(status) {
		case models.TaskStatusPending:
			stats.Pending = n
		case models.TaskStatusInProgress:
			stats.InProgress = n
		case models.TaskStatusCompleted:
			stats.Completed = n
		case models.TaskStatusFailed:
			stats.Failed = n
		case models.TaskStatusSkipped:
			stats.Skipped = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats: %w", err)
	}
	return stats, nil
}

// IsRunComplete reports whether every task in a run is in a terminal
// status, the condition the scheduler's control loop exits on (§4.5).
func (s *Store) IsRunComplete(ctx context.Context, runID string) (bool, error) {
	stats, err := s.AggregateStats(ctx, runID)
	if err != nil {
		return false, err
	}
	if stats.Total == 0 {
		return true, nil // zero pending tasks at start: run completes immediately (§8)
	}
	terminal := stats.Completed + stats.Failed + stats.Skipped
	return terminal == stats.Total, nil
}
