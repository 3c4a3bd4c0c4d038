package agentcli

import "testing"

func TestKeywordDigestTakesFirstFiveLongWords(t *testing.T) {
	digest := KeywordDigest("Fix the authentication bug in the login flow handler today")
	if digest == "" {
		t.Fatal("expected non-empty digest")
	}
	words := len(splitSpaces(digest))
	if words != 5 {
		t.Errorf("expected 5 keywords, got %d (%q)", words, digest)
	}
}

func TestKeywordDigestSkipsShortWords(t *testing.T) {
	digest := KeywordDigest("a an to of fix authentication")
	if digest != "authentication" {
		t.Errorf("expected short filler words skipped, got %q", digest)
	}
}

func TestMatchesCommitRoundTrip(t *testing.T) {
	text := "Refactor the payment processing module for clarity"
	msg := CommitMessage("task-1", text)
	if !MatchesCommit(msg, text) {
		t.Errorf("expected commit message %q to match its own task text", msg)
	}
}

func TestMatchesCommitRejectsUnrelatedText(t *testing.T) {
	msg := CommitMessage("task-1", "Refactor the payment processing module")
	if MatchesCommit(msg, "Completely unrelated different request here") {
		t.Error("expected no match for unrelated task text")
	}
}

func splitSpaces(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
