package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewResumeCommand implements resume (§6): reattach to an existing
// active run by id and drive it to completion, retrying any failed
// tasks that still have attempts remaining and skipping tasks whose
// worker checkout already carries a matching commit.
func NewResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an existing run",
		RunE:  runResume,
	}
	cmd.Flags().String("resume", "", "run id to resume (required)")
	cmd.Flags().String("repo", ".", "path to the source repository the agents will work against")
	_ = cmd.MarkFlagRequired("resume")
	return cmd
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("resume")
	repo, _ := cmd.Flags().GetString("repo")

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	log := newLogger(cmd, cfg)
	orch := buildOrchestrator(cfg, s, repo, log)

	ctx := installStopSignal(context.Background(), cmd)
	run, err := orch.Resume(ctx, runID)
	if err != nil {
		return fmt.Errorf("resuming run %s: %w", runID, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished with status %s\n", run.RunID, run.Status)
	return nil
}
