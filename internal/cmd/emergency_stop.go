package cmd

import (
	"context"
	"fmt"
	"syscall"

	"github.com/ralphswarm/swarm/internal/models"
	"github.com/spf13/cobra"
)

// NewEmergencyStopCommand implements emergency-stop (§6): force-kill the
// OS processes backing every registered worker of a run, in addition to
// marking it stopped in the coordination store. Workers register the PID
// of the process driving their claim loop (§4.1); sending it SIGKILL is
// the forced counterpart to stop's cooperative CS-level signal, for an
// operator who cannot wait for the current task to finish. Only those
// registered PIDs are signalled; agent CLI subprocesses they started are
// not sent a signal of their own.
func NewEmergencyStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency-stop",
		Short: "Forcibly kill the registered worker processes of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runEmergencyStop,
	}
	return cmd
}

func runEmergencyStop(cmd *cobra.Command, args []string) error {
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
	if err := s.CloseRun(ctx, runID, models.RunStatusStopped); err != nil {
		return fmt.Errorf("marking run %s stopped: %w", runID, err)
	}

	workers, err := s.ListWorkers(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing workers for run %s: %w", runID, err)
	}

	killed := map[int]bool{}
	for _, w := range workers {
		if w.PID == 0 || killed[w.PID] {
			continue
		}
		killed[w.PID] = true
		if err := syscall.Kill(w.PID, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			fmt.Fprintf(cmd.OutOrStderr(), "warning: could not kill pid %d (worker %s): %v\n", w.PID, w.WorkerID, err)
		}
		if err := s.SetWorkerStatus(ctx, w.WorkerID, models.WorkerStatusDead, ""); err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "warning: could not mark worker %s dead: %v\n", w.WorkerID, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "emergency-stopped run %s (%d worker pid(s) signalled)\n", runID, len(killed))
	return nil
}
