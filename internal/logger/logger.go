// Package logger provides Ralph Swarm's console logger: level-filtered,
// colorized when attached to a terminal, with box-drawn summary tables
// for run completion.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Level is a log verbosity level.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func levelFromString(s string) Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is Ralph Swarm's console logger.
type Logger struct {
	mu      sync.Mutex
	w       io.Writer
	level   Level
	colored bool
}

// New creates a logger writing to w at the given level (as named in
// config: "trace"/"debug"/"info"/"warn"/"error"). Color is auto-detected
// from whether w is a TTY, following conductor's ConsoleLogger.
func New(w io.Writer, level string) *Logger {
	return &Logger{
		w:       w,
		level:   levelFromString(level),
		colored: isTerminalWriter(w),
	}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (l *Logger) shouldLog(lv Level) bool { return lv >= l.level }

func (l *Logger) write(lv Level, colorFn func(format string, a ...interface{}) string, label, format string, args ...interface{}) {
	if !l.shouldLog(lv) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	if l.colored {
		fmt.Fprintf(l.w, "%s %s %s\n", ts, colorFn(label), msg)
	} else {
		fmt.Fprintf(l.w, "%s [%s] %s\n", ts, label, msg)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) {
	l.write(LevelTrace, color.HiBlackString, "TRACE", format, args...)
}
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, color.CyanString, "DEBUG", format, args...)
}
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, color.GreenString, "INFO", format, args...)
}
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, color.YellowString, "WARN", format, args...)
}
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, color.RedString, "ERROR", format, args...)
}

// Domain-specific event loggers, the swarm analogs of conductor's
// wave/task/QC logging methods, adapted to run/task/worker/lock events.

func (l *Logger) LogTaskClaimed(workerNum int, taskID, text string) {
	l.Info("worker-%d claimed %s: %s", workerNum, taskID, truncate(text, 60))
}

func (l *Logger) LogTaskCompleted(workerNum int, taskID string, dur time.Duration) {
	l.Info("worker-%d completed %s in %s", workerNum, taskID, dur.Round(time.Second))
}

func (l *Logger) LogTaskSkipped(workerNum int, taskID, commitID string) {
	l.Info("worker-%d skipped %s (resume match: %s)", workerNum, taskID, commitID)
}

func (l *Logger) LogTaskFailed(workerNum int, taskID string, retryable bool, err error) {
	l.Warn("worker-%d failed %s (retryable=%v): %v", workerNum, taskID, retryable, err)
}

func (l *Logger) LogWorkerStale(workerID string, since time.Duration) {
	l.Warn("worker %s stale for %s, reassigning its task", workerID, since.Round(time.Second))
}

func (l *Logger) LogLockConflict(taskID, pattern string) {
	l.Debug("task %s blocked: pattern %q held by another task", taskID, pattern)
}

func (l *Logger) LogMergeConflict(path string, workerA, workerB string) {
	l.Warn("merge conflict in %s between %s and %s", path, workerA, workerB)
}

// RunSummary carries the data LogRunSummary renders as a box-drawn table,
// the swarm analog of conductor's LogSummary.
type RunSummary struct {
	RunID          string
	Total          int
	Completed      int
	Failed         int
	Skipped        int
	Duration       time.Duration
	ConflictFiles  []string
	FailedTasks    []FailedTaskSummary
}

// FailedTaskSummary is one row of failure detail in the run summary.
type FailedTaskSummary struct {
	TaskID    string
	LastError string
}

func (l *Logger) LogRunSummary(s RunSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	width := terminalWidth()
	bar := boxBar(width)

	fmt.Fprintln(l.w, bar)
	fmt.Fprintln(l.w, boxLine(width, fmt.Sprintf("Run %s — %s", s.RunID, s.Duration.Round(time.Second))))
	fmt.Fprintln(l.w, boxLine(width, fmt.Sprintf("total=%d completed=%d failed=%d skipped=%d", s.Total, s.Completed, s.Failed, s.Skipped)))
	for _, ft := range s.FailedTasks {
		fmt.Fprintln(l.w, boxLine(width, fmt.Sprintf("  failed %s: %s", ft.TaskID, truncate(ft.LastError, width-20))))
	}
	for _, f := range s.ConflictFiles {
		fmt.Fprintln(l.w, boxLine(width, fmt.Sprintf("  conflict markers in %s", f)))
	}
	fmt.Fprintln(l.w, bar)
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	if w < 60 {
		return 60
	}
	if w > 120 {
		return 120
	}
	return w
}

func boxBar(width int) string {
	b := make([]byte, width)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

func boxLine(width int, text string) string {
	padded := text
	w := runewidth.StringWidth(text)
	if w < width {
		padded = text + string(make([]byte, 0))
		padded += spaces(width - w)
	}
	return padded
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
