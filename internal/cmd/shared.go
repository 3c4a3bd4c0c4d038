package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ralphswarm/swarm/internal/config"
	"github.com/ralphswarm/swarm/internal/llmclient"
	"github.com/ralphswarm/swarm/internal/logger"
	"github.com/ralphswarm/swarm/internal/orchestrator"
	"github.com/ralphswarm/swarm/internal/store"
	"github.com/spf13/cobra"
)

// loadConfig reads the --config flag (falling back to DefaultConfig when
// unset or absent), then applies environment overrides: file, then
// environment. CLI flags are not merged into the returned config; the
// start commands pass --workers and --timeout on to the run directly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

// openStore opens the coordination store at <state_root>/coordination.db.
func openStore(cfg *config.Config) (*store.Store, error) {
	path := filepath.Join(cfg.StateRoot, "coordination.db")
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening coordination store: %w", err)
	}
	return s, nil
}

// buildOrchestrator assembles an Orchestrator over an opened store, using
// the configured CLI-based LLM provider as the Task Analyzer's backing
// LLMClient (§1 Non-goals: the provider itself is an external
// collaborator, not something this CLI implements).
func buildOrchestrator(cfg *config.Config, s *store.Store, sourceRepo string, log *logger.Logger) *orchestrator.Orchestrator {
	llm := llmclient.New(cfg.AgentPath, cfg.LLMModel, cfg.TaskTimeout)
	return orchestrator.New(cfg, s, sourceRepo, llm, log)
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logger.Logger {
	return logger.New(cmd.OutOrStdout(), cfg.LogLevel)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// installStopSignal wraps ctx so SIGINT/SIGTERM cancels it, the same
// graceful-shutdown shape conductor's own orchestrator installs around a
// blocking ExecutePlan call. A cancelled ctx propagates to the scheduler
// and every worker goroutine (they share it), giving the same graceful
// wind-down an operator-issued stop command would request from another
// process.
func installStopSignal(ctx context.Context, cmd *cobra.Command) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.OutOrStdout(), "received interrupt, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx
}
