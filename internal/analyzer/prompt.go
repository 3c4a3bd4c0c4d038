package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// LLMClient is the minimal interface the Task Analyzer needs from an LLM
// provider: a single prompt/response round trip. The LLM provider itself
// is an external collaborator (spec.md §1 Non-goals); this is the only
// contract this module has with it.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PromptTask is one task decomposed from a free-text prompt.
type PromptTask struct {
	Task           string   `json:"task"`
	Priority       int      `json:"priority"`
	EstimatedFiles []string `json:"estimated_files"`
}

// DecomposePrompt queries the LLM once to produce an ordered list of
// parallelizable subtasks from free text (§4.3 prompt mode).
func DecomposePrompt(ctx context.Context, client LLMClient, prompt string) ([]PromptTask, error) {
	query := fmt.Sprintf(`Decompose the following development request into an ordered JSON array of
tasks. Each element must be an object with keys "task" (string instruction),
"priority" (integer, lower runs earlier, equal priorities may run
concurrently), and "estimated_files" (array of glob patterns the task is
expected to touch). Respond with JSON only.

Request:
%s`, prompt)

	raw, err := client.Complete(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying LLM for task decomposition: %w", err)
	}

	var tasks []PromptTask
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &tasks); err != nil {
		return nil, fmt.Errorf("parsing decomposition response: %w", err)
	}
	return tasks, nil
}

// extractJSONArray tolerates mixed-prose LLM output by slicing out the
// substring between the first '[' and the last ']', the array analog of
// conductor's invoker.parseAgentJSON object-extraction trick.
func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
