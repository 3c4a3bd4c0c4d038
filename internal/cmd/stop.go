package cmd

import (
	"context"
	"fmt"

	"github.com/ralphswarm/swarm/internal/models"
	"github.com/spf13/cobra"
)

// NewStopCommand implements stop (§6): request a graceful stop of an
// active run. The coordination store is the only channel this separate
// invocation has into a run already executing in another process —
// marking the run stopped there is enough, since the running
// scheduler's control loop and every worker's claim loop both check the
// run's status and wind down on their own once it is no longer running.
func NewStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop the active run",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
	return cmd
}

func runStop(cmd *cobra.Command, args []string) error {
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
	if run.IsTerminal() {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s is already %s\n", runID, run.Status)
		return nil
	}

	if err := s.CloseRun(ctx, runID, models.RunStatusStopped); err != nil {
		return fmt.Errorf("stopping run %s: %w", runID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requested graceful stop of run %s\n", runID)
	return nil
}
