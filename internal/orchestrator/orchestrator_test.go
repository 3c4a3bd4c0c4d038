package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ralphswarm/swarm/internal/config"
	"github.com/ralphswarm/swarm/internal/logger"
	"github.com/ralphswarm/swarm/internal/models"
	"github.com/ralphswarm/swarm/internal/stm"
	"github.com/ralphswarm/swarm/internal/store"
)

// fakeRunner answers known git invocations from a fixed table and
// defaults to a quiet success for everything else, the same injection
// seam worker_test.go uses to avoid shelling to a real git binary.
type fakeRunner struct {
	responses map[string]string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	if name == "git" && len(args) > 0 && args[0] == "clone" {
		// A real git clone creates the destination directory; the agent
		// CLI invocation needs that directory to exist as its working
		// directory, so the fake reproduces that one filesystem effect.
		if err := os.MkdirAll(args[len(args)-1], 0755); err != nil {
			return "", "", err
		}
	}
	key := strings.Join(append([]string{name}, args...), " ")
	if out, ok := f.responses[key]; ok {
		return out, "", nil
	}
	return "", "", nil
}

// failingLLM always errors, exercising PredictFiles' documented
// degrade-to-empty-set path (analyzer/predict.go) so the orchestrator
// test needs no real LLM provider.
type failingLLM struct{}

func (failingLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("no LLM provider configured in this test")
}

func newTestOrchestrator(t *testing.T, responses map[string]string) (*Orchestrator, *store.Store) {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sourceRepo := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceRepo, "README.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatalf("seeding source repo: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.StateRoot = filepath.Join(t.TempDir(), "state")
	cfg.ProjectsRoot = filepath.Join(t.TempDir(), "projects")
	cfg.IntegrationBranch = "main"
	cfg.Workers = 1
	cfg.MaxAttempts = 3
	cfg.PollInterval = time.Millisecond
	cfg.StaleThreshold = time.Hour
	cfg.HeartbeatPeriod = time.Hour
	cfg.TaskTimeout = 5 * time.Second

	manager := stm.New(cfg.StateRoot, sourceRepo, cfg.IntegrationBranch)
	manager.WithRunner(&fakeRunner{responses: responses})

	log := logger.New(os.Stderr, "error")

	return &Orchestrator{
		cfg:    cfg,
		store:  s,
		stm:    manager,
		log:    log,
		llm:    failingLLM{},
		source: sourceRepo,
	}, s
}

// writeAgentScript writes an executable stand-in for the agent CLI (§6):
// it discards stdin, emits a step_finish event, and prints the
// completion sentinel.
func writeAgentScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.sh")
	script := "#!/bin/sh\ncat >/dev/null\necho '{\"type\":\"step_finish\"}'\necho 'done <promise>COMPLETE</promise>'\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing agent script: %v", err)
	}
	return path
}

func TestRunPlanExecutesToCompletionAndExtractsProject(t *testing.T) {
	responses := map[string]string{
		"git branch --show-current":           "main",
		"git status --porcelain":               "M file.go",
		"git rev-parse HEAD":                   "abc123",
		"git show --name-only --format= HEAD":  "README.md",
		"git log --format=%H %s":               "",
	}
	o, s := newTestOrchestrator(t, responses)
	o.cfg.AgentPath = writeAgentScript(t)

	planText := "# Tasks\n- [ ] add a health check endpoint\n"
	run, err := o.RunPlan(context.Background(), PlanInput{
		PlanPath: "plan.md",
		PlanText: planText,
		Workers:  1,
	})
	if err != nil {
		t.Fatalf("RunPlan failed: %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected run completed, got %s", run.Status)
	}

	tasks, err := s.ListTasks(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("listing tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != models.TaskStatusCompleted {
		t.Fatalf("expected exactly one completed task, got %+v", tasks)
	}

	destination := filepath.Join(o.cfg.ProjectsRoot, run.RunID)
	marker := filepath.Join(destination, ".ralph-swarm-project.json")
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("expected published project marker at %s: %v", marker, err)
	}
}

func TestRunPlanResumesAnActiveRunInsteadOfDuplicating(t *testing.T) {
	responses := map[string]string{
		"git branch --show-current":          "main",
		"git status --porcelain":              "M file.go",
		"git rev-parse HEAD":                  "abc123",
		"git show --name-only --format= HEAD": "README.md",
		"git log --format=%H %s":              "",
	}
	o, s := newTestOrchestrator(t, responses)
	o.cfg.AgentPath = writeAgentScript(t)

	planText := "# Tasks\n- [ ] add a health check endpoint\n"

	// Seed an already-active run with the same source hash, as if a
	// prior orchestrator process started it and crashed before finishing.
	existing, err := s.StartRun(context.Background(), models.SourcePlan, "plan.md", planText, sourceHash(planText), 1)
	if err != nil {
		t.Fatalf("seeding active run: %v", err)
	}
	if _, err := s.AddTask(context.Background(), existing.RunID, "add a health check endpoint", "content-hash-1", 0, nil, 1, 3); err != nil {
		t.Fatalf("seeding task: %v", err)
	}

	run, err := o.RunPlan(context.Background(), PlanInput{
		PlanPath: "plan.md",
		PlanText: planText,
		Workers:  1,
	})
	if err != nil {
		t.Fatalf("RunPlan failed: %v", err)
	}
	if run.RunID != existing.RunID {
		t.Fatalf("expected RunPlan to resume %s, got a new run %s", existing.RunID, run.RunID)
	}

	tasks, err := s.ListTasks(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("listing tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected resume not to insert a duplicate task, got %d tasks", len(tasks))
	}
}
