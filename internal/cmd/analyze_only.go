package cmd

import (
	"fmt"
	"os"

	"github.com/ralphswarm/swarm/internal/analyzer"
	"github.com/spf13/cobra"
)

// NewAnalyzeOnlyCommand implements analyze-only (§6): parse a plan and
// print the computed task set without touching the coordination store or
// executing anything.
func NewAnalyzeOnlyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze-only",
		Short: "Parse a plan file and print the computed tasks without executing",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyzeOnly,
	}
	return cmd
}

func runAnalyzeOnly(cmd *cobra.Command, args []string) error {
	planPath := args[0]
	data, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("reading plan %s: %w", planPath, err)
	}

	all := analyzer.ParsePlan(data)
	pending := analyzer.PendingTasks(all)

	fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) total, %d pending\n\n", len(all), len(pending))
	for _, t := range pending {
		section := t.Section
		if section == "" {
			section = "(no section)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "line %d [%s]: %s\n", t.PlanLine, section, t.Text)
	}
	return nil
}
