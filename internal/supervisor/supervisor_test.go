package supervisor

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/testutil"
)

func openScript(t *testing.T, body string) *Agent {
	t.Helper()
	path := testutil.WriteScript(t, "agent", body)
	agent, err := OpenAgent(config.AgentConfig{Command: path})
	if err != nil {
		t.Fatalf("OpenAgent() error = %v", err)
	}
	t.Cleanup(func() { _ = agent.Close() })
	return agent
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) record(line string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestOpenAgent_MissingExecutable(t *testing.T) {
	_, err := OpenAgent(config.AgentConfig{Command: "shepherd-no-such-agent-binary"})
	if !errors.Is(err, errors.ErrSpawnFailed) {
		t.Fatalf("OpenAgent() error = %v, want ErrSpawnFailed", err)
	}
	if errors.IsRetryable(err) {
		t.Error("spawn failure reported as retryable")
	}
}

func TestAgent_Args(t *testing.T) {
	a := &Agent{name: "copilot", args: []string{"--allow-all-tools"}, model: "claude-sonnet-4.5"}
	got := a.Args("do it")
	want := []string{"-p", "do it", "--allow-all-tools", "--model", "claude-sonnet-4.5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}

	a.model = ""
	if got := a.CommandLine("x"); !reflect.DeepEqual(got, []string{"copilot", "-p", "x", "--allow-all-tools"}) {
		t.Errorf("CommandLine() = %v", got)
	}
}

func TestRun_DeliversLinesInOrder(t *testing.T) {
	agent := openScript(t, `
echo "● Checking partition"
echo "✓ partition: all tests passed" 1>&2
printf 'no trailing newline'
`)
	rec := &lineRecorder{}
	res, err := New(agent, nil).Run(context.Background(), Spec{Prompt: "status"}, rec.record)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"● Checking partition", "✓ partition: all tests passed", "no trailing newline"}
	if got := rec.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if res.ExitCode != 0 || res.Reason != errors.ReasonCompleted || res.Lines != 3 {
		t.Errorf("Result = %+v", res)
	}
	if agent.Running() != 0 {
		t.Errorf("Running() = %d after exit", agent.Running())
	}
}

func TestRun_PromptIsPassedAsArgument(t *testing.T) {
	agent := openScript(t, `echo "$1|$2"`)
	rec := &lineRecorder{}
	if _, err := New(agent, nil).Run(context.Background(), Spec{Prompt: "fork a,b"}, rec.record); err != nil {
		t.Fatal(err)
	}
	if got := rec.get(); len(got) != 1 || got[0] != "-p|fork a,b" {
		t.Errorf("lines = %q", got)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	agent := openScript(t, "echo partial\nexit 3")
	rec := &lineRecorder{}

	res, err := New(agent, nil).Run(context.Background(), Spec{}, rec.record)
	if !errors.Is(err, errors.ErrProcessFailed) {
		t.Fatalf("Run() error = %v, want ErrProcessFailed", err)
	}
	if res.ExitCode != 3 || res.Reason != errors.ReasonProcessFailed {
		t.Errorf("Result = %+v", res)
	}
	if got := rec.get(); len(got) != 1 || got[0] != "partial" {
		t.Errorf("partial output lost: %q", got)
	}
}

func TestRun_Timeout(t *testing.T) {
	agent := openScript(t, "echo started\nsleep 30")

	start := time.Now()
	res, err := New(agent, nil).Run(context.Background(), Spec{
		Timeout:     200 * time.Millisecond,
		GracePeriod: time.Second,
	}, nil)
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if errors.Is(err, errors.ErrCancelled) {
		t.Error("timeout also matched ErrCancelled")
	}
	if res.Reason != errors.ReasonTimeout {
		t.Errorf("Reason = %q, want %q", res.Reason, errors.ReasonTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v", elapsed)
	}
	if isAlive(res.PID) {
		t.Errorf("agent pid %d still alive", res.PID)
	}
}

func TestRun_CancelIgnoringTermIsKilled(t *testing.T) {
	agent := openScript(t, "trap '' TERM\necho ready\nsleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	var once sync.Once
	onLine := func(line string, _ time.Time) {
		if line == "ready" {
			once.Do(func() { close(ready) })
		}
	}

	go func() {
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
		}
		cancel()
	}()

	start := time.Now()
	res, err := New(agent, nil).Run(ctx, Spec{GracePeriod: 200 * time.Millisecond}, onLine)
	if !errors.Is(err, errors.ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if res.Reason != errors.ReasonCancelled {
		t.Errorf("Reason = %q", res.Reason)
	}
	if elapsed := time.Since(start); elapsed > 8*time.Second {
		t.Errorf("Run() took %v", elapsed)
	}
	if isAlive(res.PID) {
		t.Errorf("agent pid %d survived SIGKILL", res.PID)
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	agent := openScript(t, "echo never")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &lineRecorder{}
	res, err := New(agent, nil).Run(ctx, Spec{}, rec.record)
	if !errors.Is(err, errors.ErrCancelled) || res.Reason != errors.ReasonCancelled {
		t.Errorf("Run() = %+v, %v", res, err)
	}
	if len(rec.get()) != 0 {
		t.Error("agent ran despite cancelled context")
	}
}

func TestRun_SilenceWarnings(t *testing.T) {
	agent := openScript(t, "sleep 1\necho done")

	res, err := New(agent, nil).Run(context.Background(), Spec{SilenceWarning: 200 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.SilenceWarnings < 1 {
		t.Errorf("SilenceWarnings = %d, want >= 1", res.SilenceWarnings)
	}
}

func TestRun_AfterClose(t *testing.T) {
	agent := openScript(t, "echo hi")
	_ = agent.Close()

	res, err := New(agent, nil).Run(context.Background(), Spec{}, nil)
	if !errors.Is(err, errors.ErrSpawnFailed) || res.Reason != errors.ReasonSpawnFailed {
		t.Errorf("Run() after Close = %+v, %v", res, err)
	}
}

func TestAgent_CloseKillsLiveProcesses(t *testing.T) {
	agent := openScript(t, "echo up\nsleep 30")

	started := make(chan struct{})
	var once sync.Once
	done := make(chan *Result, 1)
	go func() {
		res, _ := New(agent, nil).Run(context.Background(), Spec{GracePeriod: 100 * time.Millisecond}, func(line string, _ time.Time) {
			if strings.TrimSpace(line) == "up" {
				once.Do(func() { close(started) })
			}
		})
		done <- res
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("agent never started")
	}
	if err := agent.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case res := <-done:
		if res.Reason == errors.ReasonCompleted {
			t.Errorf("killed run reported %q", res.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Close")
	}
}
