package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ralphswarm/swarm/internal/orchestrator"
	"github.com/spf13/cobra"
)

// NewStartWithPromptCommand implements start-with-prompt (§6): decompose
// a free-text prompt into tasks via the LLM provider and execute them.
func NewStartWithPromptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-with-prompt <prompt>",
		Short: "Start a run from a free-text prompt",
		Long: `Hands the given prompt to the configured LLM provider to decompose it
into a set of discrete coding tasks, then executes the resulting task set
across a pool of isolated worker checkouts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runStartWithPrompt,
	}

	cmd.Flags().Int("workers", 0, "number of workers (0 = use config default)")
	cmd.Flags().Int("timeout", 0, "overall run timeout in seconds (0 = no timeout)")
	cmd.Flags().String("repo", ".", "path to the source repository the agents will work against")

	return cmd
}

func runStartWithPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	workers, _ := cmd.Flags().GetInt("workers")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	repo, _ := cmd.Flags().GetString("repo")

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

	run, err := orch.RunPrompt(ctx, orchestrator.PromptInput{
		Prompt:  prompt,
		Workers: workers,
	})
	if err != nil {
		return fmt.Errorf("running prompt: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished with status %s\n", run.RunID, run.Status)
	return nil
}
