package supervisor

import (
	"os"
	"os/exec"
	"sync"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/errors"
)

// Agent is an opened coding-agent executable. It owns every process
// started through it; Close terminates any that are still running.
type Agent struct {
	name   string
	path   string
	model  string
	args   []string
	usePTY bool

	mu     sync.Mutex
	live   map[int]*os.Process
	closed bool
}

// OpenAgent resolves the configured executable. A missing executable is
// reported as a SpawnError before anything else happens.
func OpenAgent(cfg config.AgentConfig) (*Agent, error) {
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, errors.NewSpawnError(cfg.Command, err)
	}
	return &Agent{
		name:   cfg.Command,
		path:   path,
		model:  cfg.Model,
		args:   append([]string(nil), cfg.Args...),
		usePTY: cfg.UsePTY,
		live:   make(map[int]*os.Process),
	}, nil
}

// Name returns the command as configured.
func (a *Agent) Name() string { return a.name }

// Path returns the resolved executable path.
func (a *Agent) Path() string { return a.path }

// UsesPTY reports whether runs attach a pseudo-terminal.
func (a *Agent) UsesPTY() bool { return a.usePTY }

// Args builds the argument vector for prompt:
// -p <prompt> <configured args...> [--model <model>].
func (a *Agent) Args(prompt string) []string {
	args := make([]string, 0, len(a.args)+4)
	args = append(args, "-p", prompt)
	args = append(args, a.args...)
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	return args
}

// CommandLine returns the executable followed by Args(prompt).
func (a *Agent) CommandLine(prompt string) []string {
	return append([]string{a.name}, a.Args(prompt)...)
}

// Running returns the number of live processes started by this agent.
func (a *Agent) Running() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Close force-kills any process still running. Later runs fail.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	for pid := range a.live {
		if isAlive(pid) {
			_ = forceKill(pid)
		}
		delete(a.live, pid)
	}
	return nil
}

func (a *Agent) track(p *os.Process) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.live[p.Pid] = p
	return true
}

func (a *Agent) untrack(p *os.Process) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live, p.Pid)
}

func (a *Agent) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
