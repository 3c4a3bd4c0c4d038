package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ralphswarm/swarm/internal/logger"
	"github.com/ralphswarm/swarm/internal/models"
	"github.com/ralphswarm/swarm/internal/stm"
	"github.com/ralphswarm/swarm/internal/store"
)

// fakeRunner answers every git invocation stm.Manager makes from a fixed
// table, the same injection seam conductor's git_checkpointer_test.go
// uses to avoid shelling out to a real git binary in unit tests.
type fakeRunner struct {
	responses map[string]string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	if out, ok := f.responses[key]; ok {
		return out, "", nil
	}
	return "", "", nil
}

func newTestWorker(t *testing.T, responses map[string]string) (*Worker, *store.Store, *models.Run) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	run, err := s.StartRun(context.Background(), models.SourcePlan, "plan.md", "", "hash-1", 1)
	if err != nil {
		t.Fatalf("starting run: %v", err)
	}

	manager := stm.New("/tmp/ralph-swarm-test", "/tmp/ralph-swarm-test/src", "main")
	manager.WithRunner(&fakeRunner{responses: responses})

	log := logger.New(io.Discard, "error")

	cfg := Config{
		RunID:           run.RunID,
		WorkerID:        "worker-test-1",
		WorkerNum:       1,
		Checkout:        t.TempDir(), // the agent subprocess runs in this directory, so it must exist
		Branch:          "swarm/" + run.RunID + "/worker-1",
		TaskTimeout:     5 * time.Second,
		HeartbeatPeriod: time.Hour, // never fires during these tests
	}
	w := New(cfg, s, manager, log)
	return w, s, run
}

// writeAgentScript writes an executable shell script standing in for the
// agent CLI (§6): it reads (and discards) stdin, emits a step_finish
// event, and, when completed is true, prints the literal completion
// sentinel.
func writeAgentScript(t *testing.T, exitCode int, completed bool) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.sh")
	sentinel := ""
	if completed {
		sentinel = `echo 'done! <promise>COMPLETE</promise>'`
	}
	script := fmt.Sprintf("#!/bin/sh\ncat >/dev/null\necho '{\"type\":\"step_finish\",\"tokens_in\":10,\"tokens_out\":4}'\n%s\nexit %d\n", sentinel, exitCode)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing agent script: %v", err)
	}
	return path
}

func TestProcessTaskCompletesSuccessfullyOnSentinel(t *testing.T) {
	responses := map[string]string{
		"git log --format=%H %s":              "",
		"git add -A":                          "",
		"git status --porcelain":              "M file.go",
		"git rev-parse HEAD":                  "abc123",
		"git show --name-only --format= HEAD": "internal/auth/handler.go",
	}
	w, s, run := newTestWorker(t, responses)
	w.cfg.AgentPath = writeAgentScript(t, 0, true)

	taskID, err := s.AddTask(context.Background(), run.RunID, "fix authentication bug handler", "content-hash-1", 0, nil, 1, 3)
	if err != nil {
		t.Fatalf("adding task: %v", err)
	}
	task, err := s.ClaimNextTask(context.Background(), run.RunID, w.cfg.WorkerID, nil)
	if err != nil {
		t.Fatalf("claiming task: %v", err)
	}
	if task == nil || task.TaskID != taskID {
		t.Fatalf("expected to claim %s", taskID)
	}

	w.processTask(context.Background(), task)

	reloaded, err := s.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("reloading task: %v", err)
	}
	if reloaded.Status != models.TaskStatusCompleted {
		t.Fatalf("expected task completed, got %s (last_error=%q)", reloaded.Status, reloaded.LastError)
	}
	if len(reloaded.ActualFiles) != 1 || reloaded.ActualFiles[0] != "internal/auth/handler.go" {
		t.Errorf("expected actual_files recorded from git show, got %v", reloaded.ActualFiles)
	}
}

func TestProcessTaskRetriesWhenAgentDoesNotCompleteTask(t *testing.T) {
	responses := map[string]string{
		"git log --format=%H %s": "",
	}
	w, s, run := newTestWorker(t, responses)
	w.cfg.AgentPath = writeAgentScript(t, 0, false) // exits 0 but never prints the sentinel

	taskID, err := s.AddTask(context.Background(), run.RunID, "refactor the payment module", "content-hash-2", 0, nil, 1, 3)
	if err != nil {
		t.Fatalf("adding task: %v", err)
	}
	task, err := s.ClaimNextTask(context.Background(), run.RunID, w.cfg.WorkerID, nil)
	if err != nil {
		t.Fatalf("claiming task: %v", err)
	}

	w.processTask(context.Background(), task)

	reloaded, err := s.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("reloading task: %v", err)
	}
	if reloaded.Status != models.TaskStatusPending {
		t.Fatalf("expected task requeued to pending after non-completion, got %s", reloaded.Status)
	}
	if reloaded.AttemptCount != 1 {
		t.Errorf("expected attempt_count incremented, got %d", reloaded.AttemptCount)
	}
}

func TestProcessTaskSkipsWhenCommitLogMatchesDigest(t *testing.T) {
	responses := map[string]string{
		"git log --format=%H %s": "deadbeef task-3: authentication handler",
	}
	w, s, run := newTestWorker(t, responses)
	w.cfg.AgentPath = writeAgentScript(t, 1, false) // would fail if invoked; resume should skip before that

	taskID, err := s.AddTask(context.Background(), run.RunID, "fix authentication bug handler", "content-hash-3", 0, nil, 1, 3)
	if err != nil {
		t.Fatalf("adding task: %v", err)
	}
	task, err := s.ClaimNextTask(context.Background(), run.RunID, w.cfg.WorkerID, nil)
	if err != nil {
		t.Fatalf("claiming task: %v", err)
	}

	w.processTask(context.Background(), task)

	reloaded, err := s.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("reloading task: %v", err)
	}
	if reloaded.Status != models.TaskStatusSkipped {
		t.Fatalf("expected task skipped via resume-by-commit, got %s", reloaded.Status)
	}
}

func TestAcquireLocksOrRequeueFailsTaskOnConflict(t *testing.T) {
	w, s, run := newTestWorker(t, nil)
	ctx := context.Background()

	taskID, err := s.AddTask(ctx, run.RunID, "edit shared config", "content-hash-4", 0, []string{"config/*.yaml"}, 1, 3)
	if err != nil {
		t.Fatalf("adding task: %v", err)
	}
	task, err := s.ClaimNextTask(ctx, run.RunID, w.cfg.WorkerID, nil)
	if err != nil {
		t.Fatalf("claiming task: %v", err)
	}

	// Simulate a second worker already holding the conflicting pattern.
	if err := s.AcquireLocks(ctx, run.RunID, "worker-other", "other-task", []string{"config/*.yaml"}); err != nil {
		t.Fatalf("seeding conflicting lock: %v", err)
	}

	acquired, err := w.acquireLocksOrRequeue(ctx, task)
	if err != nil {
		t.Fatalf("acquireLocksOrRequeue: %v", err)
	}
	if acquired {
		t.Fatal("expected acquireLocksOrRequeue to report the locks as not acquired")
	}

	reloaded, err := s.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("reloading task: %v", err)
	}
	if reloaded.Status != models.TaskStatusPending {
		t.Fatalf("expected lock conflict to requeue the task, got %s", reloaded.Status)
	}
}

// TestRunSkipsAgentInvocationOnLockConflict drives the full Run() claim
// loop (not acquireLocksOrRequeue in isolation) to prove a task whose
// predicted files conflict with a lock another worker already holds never
// reaches the agent CLI, per the "workers do not concurrently modify the
// same files" invariant (§4.5).
func TestRunSkipsAgentInvocationOnLockConflict(t *testing.T) {
	w, s, run := newTestWorker(t, nil)
	ctx := context.Background()

	marker := filepath.Join(t.TempDir(), "agent-invoked")
	script := fmt.Sprintf("#!/bin/sh\ncat >/dev/null\ntouch %s\necho '{\"type\":\"step_finish\",\"tokens_in\":10,\"tokens_out\":4}'\necho 'done! <promise>COMPLETE</promise>'\nexit 0\n", marker)
	agentPath := filepath.Join(t.TempDir(), "agent.sh")
	if err := os.WriteFile(agentPath, []byte(script), 0755); err != nil {
		t.Fatalf("writing agent script: %v", err)
	}
	w.cfg.AgentPath = agentPath

	// A single attempt so the lock-conflict requeue finalizes the task as
	// failed immediately (AttemptCount 0 -> 1 == MaxAttempts), letting
	// Run()'s claim loop observe the run as complete and return promptly.
	_, err := s.AddTask(ctx, run.RunID, "edit shared config", "content-hash-5", 0, []string{"config/*.yaml"}, 1, 1)
	if err != nil {
		t.Fatalf("adding task: %v", err)
	}

	// Simulate a second worker already holding the conflicting pattern,
	// for the lifetime of the run, before this worker ever claims its task.
	if err := s.AcquireLocks(ctx, run.RunID, "worker-other", "other-task", []string{"config/*.yaml"}); err != nil {
		t.Fatalf("seeding conflicting lock: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("expected agent CLI never to be invoked on a lock-conflicted task, marker stat err=%v", err)
	}
}
