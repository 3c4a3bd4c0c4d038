// Package worker implements the Worker: the long-running process that
// repeatedly claims a task, resumes-by-commit if already done, invokes
// the agent CLI, detects completion, commits, and reports to the
// coordination store.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ralphswarm/swarm/internal/agentcli"
	"github.com/ralphswarm/swarm/internal/logger"
	"github.com/ralphswarm/swarm/internal/models"
	"github.com/ralphswarm/swarm/internal/stm"
	"github.com/ralphswarm/swarm/internal/store"
)

// Config carries the per-worker parameters the orchestrator assembles.
type Config struct {
	RunID     string
	WorkerID  string
	WorkerNum int
	Checkout  string
	Branch    string

	AgentPath string
	Provider  string
	Model     string

	TaskTimeout     time.Duration
	HeartbeatPeriod time.Duration
}

// Worker runs the claim/execute/report loop for one isolated checkout.
type Worker struct {
	cfg   Config
	store *store.Store
	stm   *stm.Manager
	log   *logger.Logger
}

// New constructs a Worker.
func New(cfg Config, s *store.Store, m *stm.Manager, log *logger.Logger) *Worker {
	return &Worker{cfg: cfg, store: s, stm: m, log: log}
}

// Run executes the claim loop until ctx is cancelled or the scheduler
// reports the run complete. It never returns an error for ordinary task
// failures — those are reported to the store; it only returns an error
// for conditions the worker itself cannot recover from (e.g. the store
// becoming unreachable).
func (w *Worker) Run(ctx context.Context) error {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeatLoop(heartbeatCtx)

	if err := w.store.SetWorkerStatus(ctx, w.cfg.WorkerID, models.WorkerStatusIdle, ""); err != nil {
		return fmt.Errorf("marking worker idle: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		run, err := w.store.GetRun(ctx, w.cfg.RunID)
		if err != nil {
			return fmt.Errorf("checking run status: %w", err)
		}
		if run.IsTerminal() {
			// An operator-issued stop (or a prior scheduler close) already
			// recorded a terminal status in CS; a worker mid-claim-loop has
			// no other channel to learn this, so it checks here before
			// pulling any further work.
			return nil
		}

		task, err := w.store.ClaimNextTask(ctx, w.cfg.RunID, w.cfg.WorkerID, nil)
		if err != nil {
			return fmt.Errorf("claiming next task: %w", err)
		}
		if task == nil {
			done, err := w.store.IsRunComplete(ctx, w.cfg.RunID)
			if err != nil {
				return fmt.Errorf("checking run completion: %w", err)
			}
			if done {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.HeartbeatPeriod / 2):
				continue
			}
		}

		acquired, err := w.acquireLocksOrRequeue(ctx, task)
		if err != nil {
			return err
		}
		if !acquired {
			continue // locks were unavailable; task was requeued, try again
		}

		if err := w.store.SetWorkerStatus(ctx, w.cfg.WorkerID, models.WorkerStatusBusy, task.TaskID); err != nil {
			return fmt.Errorf("marking worker busy: %w", err)
		}

		w.processTask(ctx, task)

		if err := w.store.SetWorkerStatus(ctx, w.cfg.WorkerID, models.WorkerStatusIdle, ""); err != nil {
			return fmt.Errorf("marking worker idle: %w", err)
		}
	}
}

// acquireLocksOrRequeue attempts to acquire the task's predicted file
// locks. Workers claim tasks themselves and the scheduler never takes
// locks, so this is where the conflict rule (§4.5) is enforced before
// any file is touched. Returns whether the locks were actually acquired;
// on a conflict the task goes through FailTask as retryable (back to
// pending, or terminally failed once its attempts are exhausted) and the
// caller must not proceed to execute it.
func (w *Worker) acquireLocksOrRequeue(ctx context.Context, task *models.Task) (bool, error) {
	if len(task.PredictedFiles) == 0 {
		return true, nil
	}
	err := w.store.AcquireLocks(ctx, w.cfg.RunID, w.cfg.WorkerID, task.TaskID, task.PredictedFiles)
	if err == nil {
		return true, nil
	}
	if err == store.ErrLockConflict {
		w.log.LogLockConflict(task.TaskID, task.PredictedFiles[0])
		if err := w.store.FailTask(ctx, task.TaskID, "lock conflict at claim time", true); err != nil {
			return false, fmt.Errorf("requeuing %s after lock conflict: %w", task.TaskID, err)
		}
		return false, nil
	}
	return false, fmt.Errorf("acquiring locks for %s: %w", task.TaskID, err)
}

func (w *Worker) processTask(ctx context.Context, task *models.Task) {
	w.log.LogTaskClaimed(w.cfg.WorkerNum, task.TaskID, task.Text)

	if commitID, skip := w.resumeCheck(ctx, task); skip {
		w.log.LogTaskSkipped(w.cfg.WorkerNum, task.TaskID, commitID)
		if err := w.store.SkipTask(ctx, task.TaskID); err != nil {
			w.log.Error("skip-reporting %s: %v", task.TaskID, err)
		}
		return
	}

	start := time.Now()
	result, err := agentcli.Invoke(ctx, agentcli.Invocation{
		AgentPath: w.cfg.AgentPath,
		Prompt:    task.Text,
		WorkDir:   w.cfg.Checkout,
		Timeout:   w.cfg.TaskTimeout,
		Provider:  w.cfg.Provider,
		Model:     w.cfg.Model,
	})
	if err != nil {
		w.log.LogTaskFailed(w.cfg.WorkerNum, task.TaskID, false, err)
		_ = w.store.FailTask(ctx, task.TaskID, err.Error(), false)
		return
	}

	if result.TimedOut {
		w.log.LogTaskFailed(w.cfg.WorkerNum, task.TaskID, true, fmt.Errorf("timed out after %s", w.cfg.TaskTimeout))
		_ = w.store.FailTask(ctx, task.TaskID, "agent timed out", true)
		return
	}

	success := result.ExitCode == 0 && result.Completed
	if !success {
		reason := fmt.Sprintf("exit=%d completed=%v", result.ExitCode, result.Completed)
		w.log.LogTaskFailed(w.cfg.WorkerNum, task.TaskID, true, fmt.Errorf("%s", reason))
		_ = w.store.FailTask(ctx, task.TaskID, reason, true)
		return
	}

	commitMsg := agentcli.CommitMessage(task.TaskID, task.Text)
	if _, err := w.stm.Commit(ctx, w.cfg.Checkout, commitMsg); err != nil {
		w.log.LogTaskFailed(w.cfg.WorkerNum, task.TaskID, true, err)
		_ = w.store.FailTask(ctx, task.TaskID, err.Error(), true)
		return
	}

	actualFiles, err := w.stm.ChangedFiles(ctx, w.cfg.Checkout)
	if err != nil {
		w.log.Warn("could not determine actual_files for %s: %v", task.TaskID, err)
	}

	if err := w.store.CompleteTask(ctx, task.TaskID, actualFiles); err != nil {
		w.log.Error("completing %s: %v", task.TaskID, err)
		return
	}
	w.log.LogTaskCompleted(w.cfg.WorkerNum, task.TaskID, time.Since(start))
}

// resumeCheck inspects the worker checkout's commit log for a commit
// whose message matches the task's keyword digest (§4.4 step 3).
func (w *Worker) resumeCheck(ctx context.Context, task *models.Task) (commitID string, skip bool) {
	log, err := w.stm.CommitLog(ctx, w.cfg.Checkout)
	if err != nil {
		return "", false
	}
	for _, line := range log {
		if agentcli.MatchesCommit(line, task.Text) {
			if sp := indexByte(line, ' '); sp > 0 {
				return line[:sp], true
			}
			return line, true
		}
	}
	return "", false
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, w.cfg.WorkerID); err != nil {
				w.log.Warn("heartbeat failed for %s: %v", w.cfg.WorkerID, err)
			}
		}
	}
}
