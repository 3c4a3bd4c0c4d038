package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand implements status/inspect (§6): a read-only dump of
// the current aggregate and worker table for a run.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"inspect"},
		Short:   "Show the current aggregate and worker table for a run",
		Args:    cobra.ExactArgs(1),
		RunE:    runStatus,
	}
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runID := args[0]

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", runID, err)
	}
	if run == nil {
		return fmt.Errorf("no such run: %s", runID)
	}

	stats, err := s.AggregateStats(ctx, runID)
	if err != nil {
		return fmt.Errorf("aggregating stats for %s: %w", runID, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: status=%s workers=%d\n", run.RunID, run.Status, run.WorkerCount)
	fmt.Fprintf(cmd.OutOrStdout(), "  tasks: total=%d pending=%d in_progress=%d completed=%d failed=%d skipped=%d\n",
		stats.Total, stats.Pending, stats.InProgress, stats.Completed, stats.Failed, stats.Skipped)

	workers, err := s.ListWorkers(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing workers for %s: %w", runID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nworkers:\n")
	for _, w := range workers {
		task := w.CurrentTask
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  worker-%d %s pid=%d status=%-8s task=%s\n", w.WorkerNum, w.WorkerID, w.PID, w.Status, task)
	}
	return nil
}
