package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type fakeLLM struct {
	response string
	calls    int
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestPredictFilesParsesJSONArray(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a"), 0644)

	llm := &fakeLLM{response: "Sure, here you go: [\"a/*.go\", \"b/*.go\"]"}
	p := NewPredictor(llm)

	patterns, err := p.PredictFiles(context.Background(), "fix the thing", "hash-1", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 2 || patterns[0] != "a/*.go" {
		t.Errorf("unexpected patterns: %v", patterns)
	}
}

func TestPredictFilesCachesByContentAndTreeDigest(t *testing.T) {
	dir := t.TempDir()
	llm := &fakeLLM{response: `["x/*"]`}
	p := NewPredictor(llm)

	if _, err := p.PredictFiles(context.Background(), "task", "hash-1", dir); err != nil {
		t.Fatal(err)
	}
	if _, err := p.PredictFiles(context.Background(), "task", "hash-1", dir); err != nil {
		t.Fatal(err)
	}
	if llm.calls != 1 {
		t.Errorf("expected cache hit to avoid a second LLM call, got %d calls", llm.calls)
	}
}

func TestPredictFilesUnparseableYieldsEmptySet(t *testing.T) {
	dir := t.TempDir()
	llm := &fakeLLM{response: "not json at all"}
	p := NewPredictor(llm)

	patterns, err := p.PredictFiles(context.Background(), "task", "hash-2", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("expected empty predicted set, got %v", patterns)
	}
}
