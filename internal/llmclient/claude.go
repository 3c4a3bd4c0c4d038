// Package llmclient provides the Task Analyzer's concrete LLMClient: a
// thin adapter over a CLI-based LLM provider. The LLM provider itself is
// an external collaborator (spec.md §1 Non-goals) — this package's only
// job is the request/response plumbing around it, adapted from
// conductor's internal/claude.Invoker down to the single prompt/response
// round trip analyzer.LLMClient needs.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ralphswarm/swarm/internal/agentcli"
)

// systemPrompt enforces JSON-only output from the provider, the same
// constraint conductor's DefaultSystemPrompt imposes so the caller never
// has to tolerate markdown or prose wrapping the answer.
const systemPrompt = "You are a developer assistant. Your ONLY output must be valid JSON matching the request. No markdown, no code fences, no prose, no explanations. Output raw JSON only."

// CLIClient invokes an LLM-backed CLI binary (e.g. "claude") once per
// Complete call and extracts its textual answer, tolerating the
// provider's own JSON envelope or plain-text output.
type CLIClient struct {
	BinaryPath string
	Model      string
	Timeout    time.Duration
}

// New constructs a CLIClient.
func New(binaryPath, model string, timeout time.Duration) *CLIClient {
	return &CLIClient{BinaryPath: binaryPath, Model: model, Timeout: timeout}
}

// Complete implements analyzer.LLMClient.
func (c *CLIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctxToUse := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctxToUse, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := []string{"--system-prompt", systemPrompt, "-p", prompt, "--output-format", "json"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}

	binary := c.BinaryPath
	if binary == "" {
		binary = "claude"
	}
	cmd := exec.CommandContext(ctxToUse, binary, args...)
	agentcli.SetCleanEnv(cmd, nil)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("invoking %s: %w (output: %s)", binary, err, out.String())
	}

	return parseResponse(out.String()), nil
}

// parseResponse extracts the provider's textual answer, preferring a
// recognized JSON envelope field ("content"/"result") and otherwise
// extracting the substring from the first '[' or '{' to the last matching
// closing bracket (no balance check) or, failing that,
// returning the raw output untouched — the same layered fallback
// conductor's claude.ParseResponse uses.
func parseResponse(raw string) string {
	var envelope map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil {
		if v, ok := envelope["content"].(string); ok && v != "" {
			return v
		}
		if v, ok := envelope["result"].(string); ok && v != "" {
			return v
		}
	}

	if start := strings.IndexAny(raw, "[{"); start >= 0 {
		closeChar := byte('}')
		if raw[start] == '[' {
			closeChar = ']'
		}
		if end := strings.LastIndexByte(raw, closeChar); end > start {
			return raw[start : end+1]
		}
	}
	return raw
}
