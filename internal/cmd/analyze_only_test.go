package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAnalyzeOnlyPrintsPendingTasksWithoutExecuting(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	plan := "# Setup\n- [x] init repo\n- [ ] add authentication handler\n\n# Wrap-up\n- [ ] write docs\n"
	if err := os.WriteFile(planPath, []byte(plan), 0644); err != nil {
		t.Fatalf("writing plan: %v", err)
	}

	cmd := NewAnalyzeOnlyCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{planPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("analyze-only failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "3 task(s) total, 2 pending") {
		t.Errorf("expected task counts in output, got: %s", out)
	}
	if !strings.Contains(out, "add authentication handler") {
		t.Errorf("expected pending task text in output, got: %s", out)
	}
	if strings.Contains(out, "init repo") {
		t.Errorf("done task should not be listed as pending, got: %s", out)
	}
}

func TestAnalyzeOnlyFailsOnMissingFile(t *testing.T) {
	cmd := NewAnalyzeOnlyCommand()
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.md")})
	cmd.SetOut(new(bytes.Buffer))

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a missing plan file")
	}
}
