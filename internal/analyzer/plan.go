// Package analyzer implements the Task Analyzer: parsing a plan document
// into task records, decomposing a free-text prompt via an LLM, and
// predicting each task's affected-files glob set.
package analyzer

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// planMarkdown parses plan documents for heading structure only; the
// checklist grammar itself stays line-based (see ParsePlan), the same
// split conductor's own markdown parser falls back to because a plain
// line scan is more reliable for fenced-code-aware checklist matching
// than walking inline AST nodes.
var planMarkdown = goldmark.New()

// PlanTask is one task extracted from a plan document, prior to being
// inserted into the coordination store.
type PlanTask struct {
	Text     string
	Status   PlanTaskStatus
	PlanLine int
	Section  string // nearest enclosing heading, if any
}

// PlanTaskStatus mirrors the checklist-box states the plan grammar
// recognizes (§4.3): pending / done / in-progress.
type PlanTaskStatus string

const (
	PlanTaskPending    PlanTaskStatus = "pending"
	PlanTaskDone       PlanTaskStatus = "done"
	PlanTaskInProgress PlanTaskStatus = "in_progress"
)

// checklistLine matches "- [ ] text", "- [x] text", "- [X] text",
// "- [✅] text", "- [⏳] text", "- [🔄] text", tolerating leading
// whitespace (nested lists) and either "-" or "*" bullets.
var checklistLine = regexp.MustCompile(`^\s*[-*]\s+\[([ xX✅⏳🔄])\]\s+(.+)$`)

// ParsePlan extracts tasks from a plan document's raw bytes. It is
// tolerant of surrounding prose, YAML front-matter fences, and fenced
// code blocks (lines inside ``` fences are never treated as checklist
// items), following the same defensive line-by-line approach conductor's
// markdown parser falls back to for code-block safety. A task's Section
// is whichever heading most recently precedes it, resolved by parsing
// the document's markdown AST once up front.
func ParsePlan(content []byte) []PlanTask {
	sections := headingSections(content)

	var tasks []PlanTask
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	inCodeFence := false
	inFrontMatter := false

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if lineNo == 1 && trimmed == "---" {
			inFrontMatter = true
			continue
		}
		if inFrontMatter {
			if trimmed == "---" {
				inFrontMatter = false
			}
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			inCodeFence = !inCodeFence
			continue
		}
		if inCodeFence {
			continue
		}

		if m := checklistLine.FindStringSubmatch(line); m != nil {
			tasks = append(tasks, PlanTask{
				Text:     strings.TrimSpace(m[2]),
				Status:   statusForBox(m[1]),
				PlanLine: lineNo,
				Section:  sections.at(lineNo),
			})
		}
	}
	return tasks
}

// sectionMap is a sorted line-number -> heading-text index, looked up by
// the nearest preceding heading for a given checklist line.
type sectionMap struct {
	lines []int
	texts []string
}

func (s sectionMap) at(lineNo int) string {
	section := ""
	for i, l := range s.lines {
		if l > lineNo {
			break
		}
		section = s.texts[i]
	}
	return section
}

// headingSections walks content's markdown AST collecting every heading's
// line number and text, the same ast.Walk-plus-extractText shape
// conductor's MarkdownParser uses to read heading labels. Front matter is
// blanked out (preserving line numbers) before parsing so a YAML "---"
// delimiter is never misread as a setext heading underline.
func headingSections(content []byte) sectionMap {
	src := blankFrontMatter(content)
	doc := planMarkdown.Parser().Parse(text.NewReader(src))

	var sm sectionMap
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := heading.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		sm.lines = append(sm.lines, lineForOffset(src, lines.At(0).Start))
		sm.texts = append(sm.texts, strings.TrimSpace(headingText(heading, src)))
		return ast.WalkContinue, nil
	})
	return sm
}

// headingText concatenates a heading's direct text children, ignoring
// inline formatting nodes (emphasis, links, ...).
func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

// lineForOffset converts a byte offset into content's 1-based line number.
func lineForOffset(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

// blankFrontMatter replaces a leading YAML front-matter block's bytes
// with blank lines, keeping every later line's number unchanged.
func blankFrontMatter(content []byte) []byte {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 2 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			for j := 0; j <= i; j++ {
				lines[j] = nil
			}
			return bytes.Join(lines, []byte("\n"))
		}
	}
	return content
}

func statusForBox(box string) PlanTaskStatus {
	switch box {
	case " ":
		return PlanTaskPending
	case "x", "X", "✅":
		return PlanTaskDone
	case "⏳", "🔄":
		return PlanTaskInProgress
	default:
		return PlanTaskPending
	}
}

// PendingTasks filters a parsed plan down to tasks that represent new
// work, per §4.3: "treat only pending tasks as new work".
func PendingTasks(tasks []PlanTask) []PlanTask {
	var out []PlanTask
	for _, t := range tasks {
		if t.Status == PlanTaskPending {
			out = append(out, t)
		}
	}
	return out
}
