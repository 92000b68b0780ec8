// Package supervisor spawns the coding agent and turns its output into a
// stream of lines.
//
// One reader goroutine reads the agent's combined output and hands each
// line to the caller in order; the calling goroutine waits for the process
// while watching for cancellation, the run deadline and silence. On
// cancellation or timeout the agent's process group receives SIGTERM,
// then SIGKILL once the grace period has passed.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/creack/pty"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
)

// Defaults used when a Spec leaves a duration unset.
const (
	DefaultGracePeriod = 10 * time.Second
	// drainTimeout bounds how long output is read after the agent exits,
	// in case a background child still holds the pipe open.
	drainTimeout = 2 * time.Second
)

// ptySize is wide enough that most agent lines are not wrapped.
var ptySize = &pty.Winsize{Rows: 50, Cols: 240}

// errRunTimeout is the context cause recorded when the deadline fires.
var errRunTimeout = errors.New("run timed out")

// Spec describes one supervised run.
type Spec struct {
	// Prompt is passed to the agent as its single positional prompt.
	Prompt string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Timeout is the maximum run duration; zero disables it.
	Timeout time.Duration
	// GracePeriod is the wait between SIGTERM and SIGKILL.
	GracePeriod time.Duration
	// SilenceWarning logs a warning after this long without output; zero
	// disables it.
	SilenceWarning time.Duration
}

// LineFunc receives each output line and when it arrived. It is called
// from a single goroutine, in output order.
type LineFunc func(line string, at time.Time)

// Result describes how a run ended.
type Result struct {
	PID             int
	ExitCode        int
	StartedAt       time.Time
	Duration        time.Duration
	Reason          string
	Lines           int
	SilenceWarnings int
	// Err is nil for a completed run, otherwise a SpawnError,
	// ProcessError or CancellationError.
	Err error
}

// Supervisor runs an Agent.
type Supervisor struct {
	agent  *Agent
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Supervisor for agent. A nil logger discards output.
func New(agent *Agent, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Supervisor{agent: agent, logger: logger, now: time.Now}
}

// Run starts the agent and blocks until it has exited and its output has
// been read. Every line is delivered to onLine before Run returns. The
// returned Result is never nil and its Err is also returned.
func (s *Supervisor) Run(ctx context.Context, spec Spec, onLine LineFunc) (*Result, error) {
	res := &Result{StartedAt: s.now(), ExitCode: -1}
	finish := func(reason string, err error) (*Result, error) {
		res.Duration = s.now().Sub(res.StartedAt)
		res.Reason = reason
		res.Err = err
		return res, err
	}

	if s.agent.isClosed() {
		return finish(errors.ReasonSpawnFailed, errors.NewSpawnError(s.agent.name, errors.New("agent closed")))
	}
	if err := ctx.Err(); err != nil {
		return finish(errors.ReasonCancelled, errors.NewCancellationError(false, 0))
	}

	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if spec.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, spec.Timeout, errRunTimeout)
		defer cancelTimeout()
	}

	cmd := exec.Command(s.agent.path, s.agent.Args(spec.Prompt)...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	output, err := s.start(cmd)
	if err != nil {
		s.logger.Error("agent spawn failed", "command", s.agent.name, "error", err)
		return finish(errors.ReasonSpawnFailed, errors.NewSpawnError(s.agent.name, err))
	}
	res.PID = cmd.Process.Pid
	if !s.agent.track(cmd.Process) {
		_ = forceKill(res.PID)
	}
	defer s.agent.untrack(cmd.Process)
	s.logger.Info("agent started", "pid", res.PID, "command", s.agent.name, "pty", s.agent.usePTY)

	var lastOutput atomic.Int64
	lastOutput.Store(res.StartedAt.UnixNano())

	var lines atomic.Int64
	readDone := make(chan error, 1)
	go func() {
		readDone <- s.readLines(output, func(line string, at time.Time) {
			lastOutput.Store(at.UnixNano())
			lines.Add(1)
			if onLine != nil {
				onLine(line, at)
			}
		})
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	stopped, waitErr := s.supervise(runCtx, res, exited, grace, spec.SilenceWarning, &lastOutput)

	select {
	case <-readDone:
	case <-time.After(drainTimeout):
		s.logger.Warn("output still open after agent exit", "pid", res.PID)
		_ = output.Close()
		<-readDone
	}
	_ = output.Close()
	res.Lines = int(lines.Load())

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if stopped {
		timedOut := errors.Is(context.Cause(runCtx), errRunTimeout)
		cerr := errors.NewCancellationError(timedOut, s.now().Sub(res.StartedAt))
		s.logger.Warn("agent stopped", "pid", res.PID, "reason", cerr.Reason, "exit_code", res.ExitCode)
		return finish(cerr.Reason, cerr)
	}
	if res.ExitCode != 0 {
		perr := errors.NewProcessError(res.ExitCode, waitErr)
		s.logger.Warn("agent failed", "pid", res.PID, "exit_code", res.ExitCode)
		return finish(errors.ReasonProcessFailed, perr)
	}
	s.logger.Info("agent exited", "pid", res.PID, "lines", res.Lines)
	return finish(errors.ReasonCompleted, nil)
}

// start launches cmd with its combined output connected to the returned
// reader, either through a pipe or a pseudo-terminal.
func (s *Supervisor) start(cmd *exec.Cmd) (*os.File, error) {
	if s.agent.usePTY {
		// pty.Start makes the child a session leader, which also makes it
		// a process group leader.
		return pty.StartWithSize(cmd, ptySize)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	_ = w.Close()
	return r, nil
}

// supervise waits for the process to exit. It reports whether the process
// was stopped because runCtx ended, and the wait error.
func (s *Supervisor) supervise(runCtx context.Context, res *Result, exited <-chan error, grace, silence time.Duration, lastOutput *atomic.Int64) (bool, error) {
	var silenceC <-chan time.Time
	if silence > 0 {
		ticker := time.NewTicker(silence)
		defer ticker.Stop()
		silenceC = ticker.C
	}

	for {
		select {
		case err := <-exited:
			return false, err

		case <-runCtx.Done():
			s.logger.Info("stopping agent", "pid", res.PID, "cause", context.Cause(runCtx))
			if err := terminate(res.PID); err != nil {
				s.logger.Debug("terminate failed", "pid", res.PID, "error", err)
			}
			select {
			case err := <-exited:
				return true, err
			case <-time.After(grace):
				s.logger.Warn("agent ignored termination, killing", "pid", res.PID, "grace", grace)
				_ = forceKill(res.PID)
				return true, <-exited
			}

		case now := <-silenceC:
			quiet := now.Sub(time.Unix(0, lastOutput.Load()))
			if quiet >= silence {
				res.SilenceWarnings++
				s.logger.Warn("agent silent", "pid", res.PID, "for", quiet.Round(time.Second))
			}
		}
	}
}

// readLines delivers each line of r, without its line terminator, until
// EOF or a read error. A final unterminated line is delivered too.
func (s *Supervisor) readLines(r io.Reader, onLine func(string, time.Time)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			onLine(strings.TrimRight(line, "\r\n"), s.now())
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// A pty reports EIO once the child side closes.
			return err
		}
	}
}
