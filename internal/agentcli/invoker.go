package agentcli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CompletionSentinel is the literal token the agent must emit somewhere
// in its textual output on success (§6).
const CompletionSentinel = "<promise>COMPLETE</promise>"

// MaxPromptBytes caps the prompt payload handed to the agent CLI. The
// spec leaves this unspecified (§9 Open Questions); DESIGN.md records
// the chosen value.
const MaxPromptBytes = 256 * 1024

// EventKind tags one parsed line of the agent's heterogeneous stdout
// stream, per the tagged-variant modeling in §9 Design Notes.
type EventKind string

const (
	EventStepStart  EventKind = "step_start"
	EventToolUse    EventKind = "tool_use"
	EventStepFinish EventKind = "step_finish"
	EventText       EventKind = "text"
	EventOther      EventKind = "other"
)

// Event is one decoded line of agent stdout.
type Event struct {
	Kind      EventKind
	TokensIn  int
	TokensOut int
	Text      string
	Raw       string
}

// parseEventLine decodes a single JSON line into an Event. A line that
// isn't valid JSON, or lacks a recognizable "type" field, becomes
// EventOther and is not treated as an error — the stream is
// heterogeneous by contract.
func parseEventLine(line string) Event {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return Event{Kind: EventOther, Raw: line}
	}

	typ, _ := obj["type"].(string)
	ev := Event{Raw: line}
	switch typ {
	case "step_start":
		ev.Kind = EventStepStart
	case "tool_use":
		ev.Kind = EventToolUse
	case "step_finish":
		ev.Kind = EventStepFinish
		ev.TokensIn = asInt(obj["tokens_in"])
		ev.TokensOut = asInt(obj["tokens_out"])
	case "text":
		ev.Kind = EventText
		ev.Text, _ = obj["text"].(string)
	default:
		ev.Kind = EventOther
		if s, ok := obj["text"].(string); ok {
			ev.Text = s
		}
	}
	return ev
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// Invocation carries the parameters of one agent CLI run.
type Invocation struct {
	AgentPath  string
	Prompt     string
	WorkDir    string
	Timeout    time.Duration
	Provider   string
	Model      string
}

// Result summarizes one completed agent invocation.
type Result struct {
	ExitCode       int
	Duration       time.Duration
	Completed      bool // output contained the completion sentinel
	TokensIn       int  // summed across every step_finish event, not just the first
	TokensOut      int
	Stdout         string
	Stderr         string
	TimedOut       bool
}

// Invoke runs the agent CLI per the §6 contract: the prompt is delivered
// on stdin, the working directory is the worker checkout, and the
// provider/model selectors are carried via environment. It blocks until
// the agent exits or the per-task timeout elapses.
func Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	if len(inv.Prompt) > MaxPromptBytes {
		return nil, fmt.Errorf("agent prompt payload %d bytes exceeds cap of %d", len(inv.Prompt), MaxPromptBytes)
	}

	runCtx := ctx
	cancel := func() {}
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.AgentPath)
	cmd.Dir = inv.WorkDir
	cmd.Stdin = strings.NewReader(inv.Prompt)
	SetCleanEnv(cmd, map[string]string{
		"RALPH_SWARM_LLM_PROVIDER": inv.Provider,
		"RALPH_SWARM_LLM_MODEL":    inv.Model,
	})

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Duration: duration,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
	}

	result.TokensIn, result.TokensOut, result.Completed = analyzeOutput(result.Stdout)

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else if !result.TimedOut {
			return result, fmt.Errorf("running agent CLI: %w", err)
		}
	}

	return result, nil
}

// analyzeOutput scans the agent's stdout line by line, summing token
// counts over every step_finish event (not just the first, per §9) and
// checking for the completion sentinel anywhere in the textual output.
func analyzeOutput(stdout string) (tokensIn, tokensOut int, completed bool) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, CompletionSentinel) {
			completed = true
		}
		ev := parseEventLine(line)
		switch ev.Kind {
		case EventStepFinish:
			tokensIn += ev.TokensIn
			tokensOut += ev.TokensOut
		case EventText, EventOther:
			if strings.Contains(ev.Text, CompletionSentinel) {
				completed = true
			}
		}
	}
	if strings.Contains(stdout, CompletionSentinel) {
		completed = true
	}
	return tokensIn, tokensOut, completed
}
