package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestStatusReportsAggregateAndWorkers(t *testing.T) {
	configPath, stateRoot := writeTestConfig(t)
	runID := seedRun(t, stateRoot, 2)

	cmd := NewStatusCommand()
	cmd.Flags().String("config", "", "")
	cmd.Flags().Set("config", configPath)
	cmd.SetArgs([]string{runID})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("status failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, runID) {
		t.Errorf("expected run id in output, got: %s", out)
	}
	if !strings.Contains(out, "status=running") {
		t.Errorf("expected run status in output, got: %s", out)
	}
}

func TestStatusFailsForUnknownRun(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	cmd := NewStatusCommand()
	cmd.Flags().String("config", "", "")
	cmd.Flags().Set("config", configPath)
	cmd.SetArgs([]string{"no-such-run"})
	cmd.SetOut(new(bytes.Buffer))

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown run id")
	}
}
