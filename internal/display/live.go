package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultRefresh is the redraw interval when none is configured.
const DefaultRefresh = 250 * time.Millisecond

// Source produces the frame to draw on each tick. Implementations must be
// safe to call from the display goroutine while the run is in progress.
type Source interface {
	Frame() Frame
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Frame

// Frame calls f.
func (f SourceFunc) Frame() Frame { return f() }

// LiveOptions control how progress is driven.
type LiveOptions struct {
	Options
	// Refresh is the redraw interval.
	Refresh time.Duration
	// Interactive redraws in place; otherwise changed frames are appended.
	Interactive bool
}

func (o LiveOptions) refresh() time.Duration {
	if o.Refresh <= 0 {
		return DefaultRefresh
	}
	return o.Refresh
}

// Run draws progress to w until ctx is done, then draws the final frame
// once more and returns. Quiet verbosity draws nothing.
func Run(ctx context.Context, w io.Writer, src Source, opts LiveOptions) error {
	switch {
	case opts.Verbosity == Quiet:
		<-ctx.Done()
		return nil
	case opts.Interactive:
		return runLive(ctx, w, src, opts)
	default:
		return runPlain(ctx, w, src, opts)
	}
}

type tickMsg time.Time

// stopMsg asks the model to draw its final frame and quit.
type stopMsg struct{}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// liveModel redraws the frame in place on every tick.
type liveModel struct {
	src      Source
	opts     Options
	interval time.Duration
	spinner  spinner.Model
	frame    Frame
	done     bool
}

func newLiveModel(src Source, opts LiveOptions) liveModel {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return liveModel{
		src:      src,
		opts:     opts.Options,
		interval: opts.refresh(),
		spinner:  sp,
		frame:    src.Frame(),
	}
}

func (m liveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(m.interval))
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = m.src.Frame()
		return m, tick(m.interval)

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.opts.Width = msg.Width
		return m, nil

	case stopMsg:
		m.frame = m.src.Frame()
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m liveModel) View() string {
	f := m.frame
	if !m.done {
		f.Spinner = m.spinner.View()
	}
	return Render(f, m.opts) + "\n"
}

func runLive(ctx context.Context, w io.Writer, src Source, opts LiveOptions) error {
	p := tea.NewProgram(
		newLiveModel(src, opts),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.Send(stopMsg{})
		case <-exited:
		}
	}()

	_, err := p.Run()
	close(exited)
	if err != nil {
		return fmt.Errorf("progress display: %w", err)
	}
	return nil
}

// runPlain appends a frame whenever its visible state changes. Elapsed
// time alone does not count as a change.
func runPlain(ctx context.Context, w io.Writer, src Source, opts LiveOptions) error {
	ticker := time.NewTicker(opts.refresh())
	defer ticker.Stop()

	last := ""
	emit := func() error {
		f := src.Frame()
		key := frameKey(f)
		if key == last {
			return nil
		}
		last = key
		_, err := fmt.Fprintln(w, Render(f, opts.Options))
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return emit()
		case <-ticker.C:
			if err := emit(); err != nil {
				return err
			}
		}
	}
}

// frameKey summarizes the parts of a frame a reader would notice change.
func frameKey(f Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", f.Phases.CompletedCount())
	if cur := f.Phases.Current; cur != nil {
		fmt.Fprintf(&b, "|%d:%s", cur.Index, phaseActivity(*cur))
	}
	for _, e := range f.Services.Entries {
		fmt.Fprintf(&b, "|%s=%s:%s", e.Name, e.State, e.Detail)
	}
	return b.String()
}
