package agentcli

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

// KeywordDigest builds the resume-matching digest for a task's text: the
// first five word-segments of four or more letters, lowercased and
// joined with a space (§4.4 step 3). Word boundaries are found with
// proper Unicode segmentation (github.com/clipperhouse/uax29/v2) rather
// than a naive whitespace split, so punctuation-adjacent tokens (e.g.
// "file.go," or "don't") are segmented the way a human reader would
// read them.
func KeywordDigest(text string) string {
	var keywords []string
	seg := words.NewSegmenter([]byte(text))
	for seg.Next() {
		word := string(seg.Bytes())
		if !isLetterWord(word) {
			continue
		}
		if len([]rune(word)) < 4 {
			continue
		}
		keywords = append(keywords, strings.ToLower(word))
		if len(keywords) == 5 {
			break
		}
	}
	return strings.Join(keywords, " ")
}

func isLetterWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

// CommitMessage builds the commit message a worker records for a
// completed task, embedding the keyword digest so a future resume can
// match against it (§4.4 step 7).
func CommitMessage(taskID, taskText string) string {
	return taskID + ": " + KeywordDigest(taskText)
}

// MatchesCommit reports whether a commit log line (as returned by
// stm.Manager.CommitLog) was produced for taskText's keyword digest.
func MatchesCommit(commitLine, taskText string) bool {
	digest := KeywordDigest(taskText)
	if digest == "" {
		return false
	}
	return strings.Contains(commitLine, digest)
}
