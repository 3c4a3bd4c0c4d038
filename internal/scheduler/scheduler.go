// Package scheduler implements the Scheduler: the per-run control loop
// that watches over a run of self-claiming workers (§4.4 step 1 — every
// Worker pulls its own next task via store.ClaimNextTask, so assignment
// itself needs no central dispatcher). The Scheduler's job is the part
// no individual worker can see: run-wide completion, and detecting and
// reaping workers whose heartbeat has lapsed (§4.5).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ralphswarm/swarm/internal/logger"
	"github.com/ralphswarm/swarm/internal/models"
	"github.com/ralphswarm/swarm/internal/store"
)

// Config carries the scheduler's tunables.
type Config struct {
	RunID          string
	PollInterval   time.Duration
	StaleThreshold time.Duration
}

// Scheduler runs the control loop described in §4.5.
type Scheduler struct {
	cfg   Config
	store *store.Store
	log   *logger.Logger
}

// New constructs a Scheduler.
func New(cfg Config, s *store.Store, log *logger.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, store: s, log: log}
}

// Run loops until every task in the run is terminal or ctx is cancelled
// by an external stop signal (§5 "Global stop").
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := s.tick(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			if err := s.store.CloseRun(context.Background(), s.cfg.RunID, models.RunStatusStopped); err != nil {
				return fmt.Errorf("marking run stopped: %w", err)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// tick performs one control-loop iteration and reports whether the run
// is now complete.
func (s *Scheduler) tick(ctx context.Context) (bool, error) {
	run, err := s.store.GetRun(ctx, s.cfg.RunID)
	if err != nil {
		return false, fmt.Errorf("loading run: %w", err)
	}
	if run.IsTerminal() {
		// An operator-issued stop already recorded a terminal status
		// directly in CS (the only channel a separate CLI invocation has
		// into an already-running orchestrator process); honor it exactly
		// like reaching natural completion.
		return true, nil
	}

	complete, err := s.store.IsRunComplete(ctx, s.cfg.RunID)
	if err != nil {
		return false, fmt.Errorf("checking completion: %w", err)
	}
	if complete {
		return true, nil
	}

	if err := s.reapStaleWorkers(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// reapStaleWorkers finds workers whose heartbeat has lapsed, releases
// their locks, returns any task they held to pending (or terminally
// fails it once attempts are exhausted), and marks the worker dead. No
// replacement worker is started for a reaped one; the remaining workers
// claim the requeued task.
func (s *Scheduler) reapStaleWorkers(ctx context.Context) error {
	stale, err := s.store.FindStaleWorkers(ctx, s.cfg.RunID, s.cfg.StaleThreshold)
	if err != nil {
		return fmt.Errorf("finding stale workers: %w", err)
	}
	for _, w := range stale {
		s.log.LogWorkerStale(w.WorkerID, w.StaleSince(time.Now()))

		if w.CurrentTask != "" {
			if err := s.store.FailTask(ctx, w.CurrentTask, "worker went stale", true); err != nil && !errors.Is(err, store.ErrWrongState) {
				return fmt.Errorf("reassigning task from stale worker: %w", err)
			}
		}
		if err := s.store.ReleaseLocks(ctx, w.WorkerID); err != nil {
			return fmt.Errorf("releasing locks for stale worker: %w", err)
		}
		if err := s.store.SetWorkerStatus(ctx, w.WorkerID, models.WorkerStatusDead, ""); err != nil {
			return fmt.Errorf("marking worker dead: %w", err)
		}
	}
	return nil
}
