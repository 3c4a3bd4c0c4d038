package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ralphswarm/swarm/internal/orchestrator"
	"github.com/spf13/cobra"
)

// NewStartWithPlanCommand implements start-with-plan (§6): parse the
// given plan file into tasks and drive a full run to completion.
func NewStartWithPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-with-plan",
		Short: "Start a run from a Markdown plan file",
		Long: `Parses the checklist tasks out of a Markdown plan file, predicts each
task's affected files, and executes the resulting task set across a pool
of isolated worker checkouts until every task reaches a terminal status.`,
		RunE: runStartWithPlan,
	}

	cmd.Flags().String("plan", "", "path to the plan file (required)")
	cmd.Flags().Int("workers", 0, "number of workers (0 = use config default)")
	cmd.Flags().Int("timeout", 0, "overall run timeout in seconds (0 = no timeout)")
	cmd.Flags().String("repo", ".", "path to the source repository the agents will work against")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runStartWithPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	planPath, _ := cmd.Flags().GetString("plan")
	workers, _ := cmd.Flags().GetInt("workers")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	repo, _ := cmd.Flags().GetString("repo")

	planText, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("reading plan %s: %w", planPath, err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	log := newLogger(cmd, cfg)
	orch := buildOrchestrator(cfg, s, repo, log)

	ctx := context.Background()
	if timeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		defer cancel()
	}
	ctx = installStopSignal(ctx, cmd)

	run, err := orch.RunPlan(ctx, orchestrator.PlanInput{
		PlanPath: planPath,
		PlanText: string(planText),
		Workers:  workers,
	})
	if err != nil {
		return fmt.Errorf("running plan: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished with status %s\n", run.RunID, run.Status)
	return nil
}
