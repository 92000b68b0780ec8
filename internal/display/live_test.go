package display

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/shepherd/internal/phase"
	"github.com/Iron-Ham/shepherd/internal/tracker"
)

// countingSource returns the sample frame and counts calls.
type countingSource struct {
	calls atomic.Int32
	frame Frame
}

func (s *countingSource) Frame() Frame {
	s.calls.Add(1)
	return s.frame
}

func TestLiveModelTickRefreshesFrame(t *testing.T) {
	src := &countingSource{frame: Frame{Workflow: "fork"}}
	m := newLiveModel(src, LiveOptions{Refresh: time.Second})

	src.frame = sampleFrame()
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick should schedule another tick")
	}
	view := next.View()
	if !strings.Contains(view, "shepherd status") {
		t.Errorf("view = %q, want refreshed frame", view)
	}
}

func TestLiveModelStopQuits(t *testing.T) {
	src := &countingSource{frame: sampleFrame()}
	m := newLiveModel(src, LiveOptions{})

	next, cmd := m.Update(stopMsg{})
	if cmd == nil {
		t.Fatal("stop should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("stop command = %T, want tea.QuitMsg", cmd())
	}
	if !next.(liveModel).done {
		t.Error("model should be done after stop")
	}

	// Ticks after stop are ignored.
	if _, cmd := next.Update(tickMsg(time.Now())); cmd != nil {
		t.Error("tick after stop should not reschedule")
	}
}

func TestLiveModelWindowSize(t *testing.T) {
	m := newLiveModel(&countingSource{}, LiveOptions{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	if got := next.(liveModel).opts.Width; got != 60 {
		t.Errorf("width = %d, want 60", got)
	}
}

func TestRunQuietWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := Run(ctx, &buf, &countingSource{}, LiveOptions{Options: Options{Verbosity: Quiet}}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet output = %q", buf.String())
	}
}

func TestRunPlainDrawsFinalFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	src := &countingSource{frame: sampleFrame()}
	if err := Run(ctx, &buf, src, LiveOptions{Refresh: time.Hour}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := strings.Count(buf.String(), "phases complete"); n != 1 {
		t.Errorf("drew %d frames, want 1:\n%s", n, buf.String())
	}
}

func TestRunPlainSkipsUnchangedFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	src := &countingSource{frame: sampleFrame()}
	if err := Run(ctx, &buf, src, LiveOptions{Refresh: 10 * time.Millisecond}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if src.calls.Load() < 2 {
		t.Fatalf("source polled %d times, want several", src.calls.Load())
	}
	if n := strings.Count(buf.String(), "phases complete"); n != 1 {
		t.Errorf("drew %d frames for an unchanged source, want 1", n)
	}
}

func TestFrameKeyIgnoresElapsed(t *testing.T) {
	a := sampleFrame()
	b := sampleFrame()
	b.Now = b.Now.Add(time.Minute)
	if frameKey(a) != frameKey(b) {
		t.Error("elapsed time alone changed the frame key")
	}

	b.Services = tracker.Snapshot{Entries: []tracker.Entry{{Name: "billing", State: tracker.Error}}}
	if frameKey(a) == frameKey(b) {
		t.Error("service change did not change the frame key")
	}

	b = sampleFrame()
	b.Phases = phase.Snapshot{}
	if frameKey(a) == frameKey(b) {
		t.Error("phase change did not change the frame key")
	}
}
