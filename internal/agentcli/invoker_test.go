package agentcli

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestAnalyzeOutputDetectsCompletionSentinel(t *testing.T) {
	stdout := `{"type":"step_start"}
{"type":"text","text":"working on it"}
{"type":"step_finish","tokens_in":10,"tokens_out":5}
{"type":"text","text":"done! <promise>COMPLETE</promise>"}
`
	tokensIn, tokensOut, completed := analyzeOutput(stdout)
	if !completed {
		t.Error("expected completion sentinel to be detected")
	}
	if tokensIn != 10 || tokensOut != 5 {
		t.Errorf("unexpected token counts: in=%d out=%d", tokensIn, tokensOut)
	}
}

func TestAnalyzeOutputSumsAllStepFinishEvents(t *testing.T) {
	stdout := `{"type":"step_finish","tokens_in":10,"tokens_out":5}
{"type":"step_finish","tokens_in":20,"tokens_out":8}
`
	tokensIn, tokensOut, _ := analyzeOutput(stdout)
	if tokensIn != 30 || tokensOut != 13 {
		t.Errorf("expected summed tokens 30/13, got %d/%d", tokensIn, tokensOut)
	}
}

func TestAnalyzeOutputNoSentinelMeansIncomplete(t *testing.T) {
	_, _, completed := analyzeOutput(`{"type":"text","text":"all done"}`)
	if completed {
		t.Error("expected no completion without the literal sentinel")
	}
}

func TestInvokeRejectsOversizedPrompt(t *testing.T) {
	huge := strings.Repeat("x", MaxPromptBytes+1)
	_, err := Invoke(context.Background(), Invocation{AgentPath: "true", Prompt: huge, Timeout: time.Second})
	if err == nil {
		t.Error("expected error for oversized prompt")
	}
}
