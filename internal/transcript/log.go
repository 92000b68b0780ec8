package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Section markers written into the log file.
const (
	Separator     = "============================================================"
	PayloadMarker = "=== EXTRACTED JSON ==="
	FailureMarker = "=== EXTRACTION FAILURE ==="
	FooterMarker  = "=== RUN COMPLETE ==="
)

// Header describes the invocation at the top of a log file.
type Header struct {
	RunID     string
	Workflow  string
	Targets   []string
	Command   []string
	WorkDir   string
	StartedAt time.Time
}

// Footer closes a log file.
type Footer struct {
	ExitCode   int
	Reason     string
	Duration   time.Duration
	FinishedAt time.Time
}

// Log streams a transcript to a file. All methods are safe for concurrent
// use; the footer is written at most once and nothing after it.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	footed bool
	closed bool
	err    error
}

// maxNameAttempts bounds the numbered names tried when a log name is taken.
const maxNameAttempts = 1000

// Create opens a new log at path (creating parent directories) and writes
// the header. An existing file is never overwritten: when path is taken
// the log is created as name-1.log, name-2.log and so on. Path reports the
// name actually used.
func Create(path string, h Header) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, path, err := createExclusive(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Log{path: path, file: f, w: bufio.NewWriter(f)}
	l.writeLocked(fmt.Sprintf("Run ID:    %s", h.RunID))
	l.writeLocked(fmt.Sprintf("Workflow:  %s", h.Workflow))
	l.writeLocked(fmt.Sprintf("Targets:   %s", strings.Join(h.Targets, ", ")))
	l.writeLocked(fmt.Sprintf("Command:   %s", strings.Join(h.Command, " ")))
	l.writeLocked(fmt.Sprintf("Work dir:  %s", h.WorkDir))
	l.writeLocked(fmt.Sprintf("Started:   %s", h.StartedAt.UTC().Format(time.RFC3339)))
	l.writeLocked(Separator)
	l.flushLocked()
	if l.err != nil {
		_ = f.Close()
		return nil, l.err
	}
	return l, nil
}

func createExclusive(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for n := 1; ; n++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) || n > maxNameAttempts {
			return nil, "", err
		}
		candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// WriteLine appends one transcript line and flushes it so followers see
// it immediately.
func (l *Log) WriteLine(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.footed || l.closed {
		return l.err
	}
	l.writeLocked(text)
	l.flushLocked()
	return l.err
}

// WritePayload appends the extracted payload section.
func (l *Log) WritePayload(payload map[string]any) error {
	return l.writeSection(PayloadMarker, payload)
}

// WriteFailure appends an extraction failure record.
func (l *Log) WriteFailure(failure any) error {
	return l.writeSection(FailureMarker, failure)
}

func (l *Log) writeSection(marker string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", marker, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.footed || l.closed {
		return l.err
	}
	l.writeLocked("")
	l.writeLocked(marker)
	l.writeLocked(string(body))
	l.flushLocked()
	return l.err
}

// WriteFooter appends the closing section. Only the first call writes.
func (l *Log) WriteFooter(f Footer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.footed || l.closed {
		return l.err
	}
	l.footed = true
	l.writeLocked("")
	l.writeLocked(FooterMarker)
	l.writeLocked(fmt.Sprintf("Exit code: %d", f.ExitCode))
	l.writeLocked(fmt.Sprintf("Reason:    %s", f.Reason))
	l.writeLocked(fmt.Sprintf("Duration:  %s", f.Duration.Round(time.Millisecond)))
	l.writeLocked(fmt.Sprintf("Finished:  %s", f.FinishedAt.UTC().Format(time.RFC3339)))
	l.flushLocked()
	return l.err
}

// Close flushes and closes the file. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return l.err
	}
	l.closed = true
	l.flushLocked()
	if err := l.file.Sync(); err != nil && l.err == nil {
		l.err = err
	}
	if err := l.file.Close(); err != nil && l.err == nil {
		l.err = err
	}
	return l.err
}

func (l *Log) writeLocked(line string) {
	if l.err != nil {
		return
	}
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		l.err = fmt.Errorf("write log: %w", err)
	}
}

func (l *Log) flushLocked() {
	if l.err != nil {
		return
	}
	if err := l.w.Flush(); err != nil {
		l.err = fmt.Errorf("flush log: %w", err)
	}
}
