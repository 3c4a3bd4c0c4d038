// Package cmd wires the CLI surface named in §6: start-with-plan,
// start-with-prompt, analyze-only, resume, stop, emergency-stop, and
// status. Each subcommand that reads or changes run state (every one but
// analyze-only) opens its own Coordination Store handle against
// the configured state root — the store is the only channel separate CLI
// invocations have into a run already in progress.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags, following conductor's
// NewRootCommand convention; it defaults to "dev" for local builds.
var Version = "dev"

// NewRootCommand constructs the ralphswarm root command with every
// subcommand registered.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ralphswarm",
		Short: "Decompose a plan into tasks and execute them with a swarm of isolated coding agents",
		Long: `ralphswarm orchestrates a development plan into discrete coding tasks and
executes them in parallel across isolated worker checkouts, each driving
its own coding-agent subprocess, coordinated through a durable shared
store so a run can be interrupted and resumed without redoing completed
work.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().String("config", "", "path to config file (default: none; built-in defaults plus RALPH_* environment overrides)")

	cmd.AddCommand(
		NewStartWithPlanCommand(),
		NewStartWithPromptCommand(),
		NewAnalyzeOnlyCommand(),
		NewResumeCommand(),
		NewStopCommand(),
		NewEmergencyStopCommand(),
		NewStatusCommand(),
	)

	return cmd
}
