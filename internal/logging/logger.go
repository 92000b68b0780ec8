package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the debug log inside the state directory.
const LogFileName = "debug.log"

// Logger provides structured logging with persistent run context.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	sink   io.Closer
	mu     *sync.Mutex
	attrs  []slog.Attr
}

// Options control where and how a Logger writes.
type Options struct {
	Level    string
	Rotation RotationConfig
}

// NewLogger creates a Logger that writes JSON lines to {stateDir}/debug.log
// through a RotatingWriter. If stateDir is empty, logs go to stderr.
func NewLogger(stateDir string, opts Options) (*Logger, error) {
	var writer io.Writer = os.Stderr
	var sink io.Closer

	if stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		rw, err := NewRotatingWriter(filepath.Join(stateDir, LogFileName), opts.Rotation)
		if err != nil {
			return nil, err
		}
		writer = rw
		sink = rw
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
	return &Logger{
		logger: slog.New(handler),
		sink:   sink,
		mu:     &sync.Mutex{},
	}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRun returns a child Logger tagged with the run id.
func (l *Logger) WithRun(runID string) *Logger {
	return l.withAttr(slog.String("run_id", runID))
}

// WithWorkflow returns a child Logger tagged with the workflow name.
func (l *Logger) WithWorkflow(name string) *Logger {
	return l.withAttr(slog.String("workflow", name))
}

// WithTarget returns a child Logger tagged with a target name.
func (l *Logger) WithTarget(name string) *Logger {
	return l.withAttr(slog.String("target", name))
}

// With returns a child Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments; non-string keys are skipped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	attrs = append(attrs, l.attrs...)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return &Logger{logger: l.logger, sink: l.sink, mu: l.mu, attrs: attrs}
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	attrs := make([]slog.Attr, len(l.attrs)+1)
	copy(attrs, l.attrs)
	attrs[len(l.attrs)] = attr
	return &Logger{logger: l.logger, sink: l.sink, mu: l.mu, attrs: attrs}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	all := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		all = append(all, attr.Key, attr.Value.Any())
	}
	all = append(all, args...)
	l.logger.Log(context.Background(), level, msg, all...)
}

// Close flushes and closes the underlying sink. Child loggers share the
// sink, so closing any of them closes it for all. Closing twice is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		mu:     &sync.Mutex{},
	}
}

// ParseLevel normalizes a level string, falling back to LevelInfo.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return strings.ToUpper(level)
	default:
		return LevelInfo
	}
}

// ValidLevels returns the accepted level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
