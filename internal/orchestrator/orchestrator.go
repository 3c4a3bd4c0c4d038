// Package orchestrator wires together the Coordination Store, Source-Tree
// Manager, Task Analyzer, Workers, and Scheduler into a single run, per
// the startup contract in §4.6.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ralphswarm/swarm/internal/analyzer"
	"github.com/ralphswarm/swarm/internal/config"
	"github.com/ralphswarm/swarm/internal/logger"
	"github.com/ralphswarm/swarm/internal/models"
	"github.com/ralphswarm/swarm/internal/scheduler"
	"github.com/ralphswarm/swarm/internal/stm"
	"github.com/ralphswarm/swarm/internal/store"
	"github.com/ralphswarm/swarm/internal/worker"
)

// Orchestrator owns one run end to end.
type Orchestrator struct {
	cfg    *config.Config
	store  *store.Store
	stm    *stm.Manager
	log    *logger.Logger
	llm    analyzer.LLMClient
	source string // path to the source repository being worked on
}

// New constructs an Orchestrator over an already-opened store.
func New(cfg *config.Config, s *store.Store, sourceRepo string, llm analyzer.LLMClient, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		store:  s,
		stm:    stm.New(cfg.StateRoot, sourceRepo, cfg.IntegrationBranch),
		log:    log,
		llm:    llm,
		source: sourceRepo,
	}
}

// PlanInput requests a plan-backed run.
type PlanInput struct {
	PlanPath string
	PlanText string // raw plan bytes, already read by the caller
	Workers  int
}

// PromptInput requests a prompt-backed run.
type PromptInput struct {
	Prompt  string
	Workers int
}

// sourceHash returns the resume/dedup key for a plan or prompt body
// (§4.6 step 2).
func sourceHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// RunPlan executes the full startup contract for a plan-backed run and
// blocks until the scheduler reports completion, then merges and
// extracts. It resumes an existing active run with a matching source
// hash instead of starting a duplicate (§4.6 step 2).
func (o *Orchestrator) RunPlan(ctx context.Context, in PlanInput) (*models.Run, error) {
	hash := sourceHash(in.PlanText)

	run, resumed, err := o.findOrStartRun(ctx, models.SourcePlan, in.PlanPath, in.PlanText, hash, in.Workers)
	if err != nil {
		return nil, err
	}

	if !resumed {
		tasks := analyzer.PendingTasks(analyzer.ParsePlan([]byte(in.PlanText)))
		if err := o.insertTasks(ctx, run.RunID, tasks); err != nil {
			return nil, err
		}
	}

	return o.runToCompletion(ctx, run)
}

// RunPrompt executes the full startup contract for a prompt-backed run.
func (o *Orchestrator) RunPrompt(ctx context.Context, in PromptInput) (*models.Run, error) {
	hash := sourceHash(in.Prompt)

	run, resumed, err := o.findOrStartRun(ctx, models.SourcePrompt, "", in.Prompt, hash, in.Workers)
	if err != nil {
		return nil, err
	}

	if !resumed {
		decomposed, err := analyzer.DecomposePrompt(ctx, o.llm, in.Prompt)
		if err != nil {
			return nil, fmt.Errorf("decomposing prompt: %w", err)
		}
		if err := o.insertPromptTasks(ctx, run.RunID, decomposed); err != nil {
			return nil, err
		}
	}

	return o.runToCompletion(ctx, run)
}

// Resume reattaches to an existing active run by id and drives it to
// completion without re-decomposing or re-inserting tasks.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*models.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("no such run: %s", runID)
	}
	if run.IsTerminal() {
		return run, nil
	}
	if _, err := o.store.RetryFailed(ctx, runID); err != nil {
		return nil, fmt.Errorf("retrying failed tasks: %w", err)
	}
	return o.runToCompletion(ctx, run)
}

func (o *Orchestrator) findOrStartRun(ctx context.Context, kind models.SourceKind, sourcePath, sourceText, hash string, workers int) (*models.Run, bool, error) {
	if existing, err := o.store.FindActiveRun(ctx, hash); err != nil {
		return nil, false, fmt.Errorf("checking for active run: %w", err)
	} else if existing != nil {
		if _, err := o.store.RetryFailed(ctx, existing.RunID); err != nil {
			return nil, false, fmt.Errorf("retrying failed tasks: %w", err)
		}
		return existing, true, nil
	}

	if workers <= 0 {
		workers = o.cfg.Workers
	}
	run, err := o.store.StartRun(ctx, kind, sourcePath, sourceText, hash, workers)
	if err != nil {
		return nil, false, fmt.Errorf("starting run: %w", err)
	}
	return run, false, nil
}

func (o *Orchestrator) insertTasks(ctx context.Context, runID string, tasks []analyzer.PlanTask) error {
	predictor := analyzer.NewPredictor(o.llm)
	for _, t := range tasks {
		contentHash := analyzer.ContentHash(t.Text)
		predicted, err := predictor.PredictFiles(ctx, t.Text, contentHash, o.source)
		if err != nil {
			return fmt.Errorf("predicting files for %q: %w", t.Text, err)
		}
		if _, err := o.store.AddTask(ctx, runID, t.Text, contentHash, 0, predicted, t.PlanLine, o.cfg.MaxAttempts); err != nil {
			return fmt.Errorf("adding task %q: %w", t.Text, err)
		}
	}
	return nil
}

func (o *Orchestrator) insertPromptTasks(ctx context.Context, runID string, tasks []analyzer.PromptTask) error {
	for _, t := range tasks {
		contentHash := analyzer.ContentHash(t.Task)
		if _, err := o.store.AddTask(ctx, runID, t.Task, contentHash, t.Priority, t.EstimatedFiles, 0, o.cfg.MaxAttempts); err != nil {
			return fmt.Errorf("adding task %q: %w", t.Task, err)
		}
	}
	return nil
}

// runToCompletion performs §4.6 steps 1 and 4-6: normalize the
// integration branch, spin up N worker goroutines bound to isolated
// checkouts, run the scheduler, then merge and extract.
func (o *Orchestrator) runToCompletion(ctx context.Context, run *models.Run) (*models.Run, error) {
	start := time.Now()

	if err := o.stm.BasePrepare(ctx); err != nil {
		return nil, fmt.Errorf("normalizing integration branch: %w", err)
	}

	workerBranches, waitWorkers, err := o.spawnWorkers(ctx, run)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		RunID:          run.RunID,
		PollInterval:   o.cfg.PollInterval,
		StaleThreshold: o.cfg.StaleThreshold,
	}, o.store, o.log)

	// The scheduler and every worker share ctx: a stop signal cancels both
	// at once, and the scheduler's own exit (completion or cancellation)
	// is the run's natural end, at which point the workers' claim loops
	// also observe run-complete (or ctx.Done) and return on their own.
	if err := sched.Run(ctx); err != nil {
		return nil, fmt.Errorf("running scheduler: %w", err)
	}
	if err := waitWorkers(); err != nil {
		return nil, err
	}

	final, err := o.store.GetRun(context.Background(), run.RunID)
	if err != nil {
		return nil, fmt.Errorf("reloading run: %w", err)
	}
	if final.Status == models.RunStatusRunning {
		if err := o.store.CloseRun(context.Background(), run.RunID, models.RunStatusCompleted); err != nil {
			return nil, fmt.Errorf("closing completed run: %w", err)
		}
		final.Status = models.RunStatusCompleted
	}

	mergeResult, err := o.stm.Merge(context.Background(), run.RunID, workerBranches)
	if err != nil {
		return nil, fmt.Errorf("merging worker branches: %w", err)
	}
	for _, c := range mergeResult.Conflicts {
		o.log.LogMergeConflict(c.Path, c.WorkerA, c.WorkerB)
	}

	destination := o.cfg.ProjectsRoot + "/" + run.RunID
	if err := o.stm.Extract(context.Background(), run.RunID, destination); err != nil {
		return nil, fmt.Errorf("extracting published project: %w", err)
	}

	o.logSummary(context.Background(), final, start, mergeResult.Conflicts)
	return final, nil
}

// spawnWorkers prepares N isolated checkouts, registers each worker in
// CS, and launches its claim loop as a goroutine (§4.6 step 4 — "as a
// subprocess or thread"; a goroutine bound to CS through the same
// Store handle is the natural Go realization of "thread" here). It
// returns immediately once every goroutine is launched; the returned
// wait function blocks until they have all returned, which callers
// should invoke only after the scheduler itself has stopped.
func (o *Orchestrator) spawnWorkers(ctx context.Context, run *models.Run) (map[int]string, func() error, error) {
	branches := make(map[int]string, run.WorkerCount)
	var wg sync.WaitGroup
	errs := make([]error, run.WorkerCount)

	for n := 1; n <= run.WorkerCount; n++ {
		checkout, err := o.stm.PrepareWorkerCheckout(ctx, run.RunID, n)
		if err != nil {
			return nil, nil, fmt.Errorf("preparing checkout for worker %d: %w", n, err)
		}
		branch := o.stm.WorkerBranch(run.RunID, n)
		branches[n] = branch

		workerID, err := o.store.RegisterWorker(ctx, run.RunID, n, os.Getpid(), branch, checkout)
		if err != nil {
			return nil, nil, fmt.Errorf("registering worker %d: %w", n, err)
		}

		// o.stm is shared across every worker goroutine: its methods all
		// take the checkout path as an explicit argument rather than
		// binding to one fixed tree, so one Manager instance safely serves
		// every worker's isolated checkout.
		w := worker.New(worker.Config{
			RunID:           run.RunID,
			WorkerID:        workerID,
			WorkerNum:       n,
			Checkout:        checkout,
			Branch:          branch,
			AgentPath:       o.cfg.AgentPath,
			Provider:        o.cfg.LLMProvider,
			Model:           o.cfg.LLMModel,
			TaskTimeout:     o.cfg.TaskTimeout,
			HeartbeatPeriod: o.cfg.HeartbeatPeriod,
		}, o.store, o.stm, o.log)

		wg.Add(1)
		idx := n - 1
		go func() {
			defer wg.Done()
			errs[idx] = w.Run(ctx)
		}()
	}

	wait := func() error {
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return fmt.Errorf("worker failed: %w", err)
			}
		}
		return nil
	}
	return branches, wait, nil
}

func (o *Orchestrator) logSummary(ctx context.Context, run *models.Run, start time.Time, conflicts []stm.ConflictRecord) {
	stats, err := o.store.AggregateStats(ctx, run.RunID)
	if err != nil {
		o.log.Error("computing final stats: %v", err)
		return
	}

	var failedTasks []logger.FailedTaskSummary
	tasks, err := o.store.ListTasks(ctx, run.RunID)
	if err == nil {
		for _, t := range tasks {
			if t.Status == models.TaskStatusFailed {
				failedTasks = append(failedTasks, logger.FailedTaskSummary{TaskID: t.TaskID, LastError: t.LastError})
			}
		}
	}

	var conflictFiles []string
	for _, c := range conflicts {
		conflictFiles = append(conflictFiles, c.Path)
	}

	o.log.LogRunSummary(logger.RunSummary{
		RunID:         run.RunID,
		Total:         stats.Total,
		Completed:     stats.Completed,
		Failed:        stats.Failed,
		Skipped:       stats.Skipped,
		Duration:      time.Since(start),
		ConflictFiles: conflictFiles,
		FailedTasks:   failedTasks,
	})
}
