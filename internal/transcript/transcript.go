// Package transcript holds the raw output of one agent run and persists it
// as a plain-text log.
//
// The in-memory Transcript is the single source of truth for a run: phase
// trees, service states and the extracted payload can all be recomputed
// from its lines. The Log mirrors those lines to disk as they arrive so
// the file survives a crash or a forced kill.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Line is one raw output line and its offset from the start of the run.
type Line struct {
	Offset time.Duration
	Text   string
}

// Transcript is an append-only sequence of lines plus run metadata.
type Transcript struct {
	mu        sync.Mutex
	startedAt time.Time
	command   []string
	lines     []Line
	exitCode  int
	finished  bool
}

// New starts an empty transcript for command.
func New(command []string, startedAt time.Time) *Transcript {
	return &Transcript{
		startedAt: startedAt,
		command:   append([]string(nil), command...),
	}
}

// Append records text as received at at.
func (t *Transcript) Append(text string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, Line{Offset: at.Sub(t.startedAt), Text: text})
}

// Finish records the process exit code. Later calls are ignored.
func (t *Transcript) Finish(exitCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.exitCode = exitCode
	t.finished = true
}

// ExitCode returns the recorded exit code and whether Finish was called.
func (t *Transcript) ExitCode() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode, t.finished
}

// StartedAt returns when the run began.
func (t *Transcript) StartedAt() time.Time { return t.startedAt }

// Command returns a copy of the invoked command line.
func (t *Transcript) Command() []string {
	return append([]string(nil), t.command...)
}

// Len returns the number of lines recorded.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// Text joins all lines with newlines.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	for i, l := range t.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	return b.String()
}
