// Package display renders run progress and the final report.
//
// Rendering is a pure projection: a Frame built from phase and service
// snapshots becomes one block of text. The only state the package keeps
// is the rolling narrative buffer, so every frame can be re-derived from
// snapshots and tested without a live agent.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/phase"
	"github.com/Iron-Ham/shepherd/internal/tracker"
	"github.com/Iron-Ham/shepherd/internal/util"
)

// Verbosity selects how much of a frame is drawn.
type Verbosity int

const (
	// Minimal draws the current phase and the phase counter.
	Minimal Verbosity = iota
	// Verbose draws every phase with its tools, the service table and
	// recent narrative.
	Verbose
	// Quiet draws no frames; only the final report is printed.
	Quiet
)

// ParseVerbosity maps a configured verbosity name onto a Verbosity.
// Unknown names select Minimal.
func ParseVerbosity(name string) Verbosity {
	switch name {
	case config.VerbosityVerbose:
		return Verbose
	case config.VerbosityQuiet:
		return Quiet
	default:
		return Minimal
	}
}

// String returns the configured name of v.
func (v Verbosity) String() string {
	switch v {
	case Verbose:
		return config.VerbosityVerbose
	case Quiet:
		return config.VerbosityQuiet
	default:
		return config.VerbosityMinimal
	}
}

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 100

// Frame is everything one redraw is derived from.
type Frame struct {
	Workflow  string
	StartedAt time.Time
	Now       time.Time
	Phases    phase.Snapshot
	Services  tracker.Snapshot
	Narrative []string
	// Spinner replaces the running glyph when set.
	Spinner string
}

// Elapsed is the run time at the moment of the frame.
func (f Frame) Elapsed() time.Duration {
	if f.StartedAt.IsZero() || f.Now.Before(f.StartedAt) {
		return 0
	}
	return f.Now.Sub(f.StartedAt)
}

// Options control rendering.
type Options struct {
	Verbosity Verbosity
	// Width is the terminal width in columns; zero selects DefaultWidth.
	Width int
	// Renderer styles output; nil renders without color.
	Renderer *lipgloss.Renderer
}

func (o Options) width() int {
	if o.Width <= 0 {
		return DefaultWidth
	}
	return o.Width
}

// Render draws one frame. Quiet verbosity yields an empty string.
func Render(f Frame, opts Options) string {
	if opts.Verbosity == Quiet {
		return ""
	}
	th := newTheme(opts.Renderer)
	width := opts.width()

	var lines []string
	lines = append(lines, th.title.Render("shepherd "+f.Workflow)+th.muted.Render(" · "+util.FormatDuration(f.Elapsed())))

	if opts.Verbosity == Verbose {
		lines = append(lines, renderPhaseTree(f, th, width)...)
	} else {
		lines = append(lines, currentPhaseLine(f, th))
	}
	lines = append(lines, th.muted.Render(phaseCounter(f.Phases)))

	if opts.Verbosity == Verbose {
		lines = append(lines, "")
		if len(f.Services.Entries) > 0 {
			lines = append(lines, renderServices(f.Services, th, width, f.Spinner)...)
			lines = append(lines, serviceTally(f.Services, th))
		}
		if len(f.Narrative) > 0 {
			lines = append(lines, "", th.muted.Render("Recent output:"))
			for _, n := range f.Narrative {
				lines = append(lines, th.muted.Render("  "+n))
			}
		}
	}

	for i, l := range lines {
		lines[i] = util.TruncateANSI(l, width)
	}
	return strings.Join(lines, "\n")
}

// phaseCounter renders "X/Y phases complete".
func phaseCounter(s phase.Snapshot) string {
	return fmt.Sprintf("%d/%d phases complete", s.CompletedCount(), s.Total())
}

func currentPhaseLine(f Frame, th theme) string {
	cur := f.Phases.Current
	if cur == nil {
		if f.Phases.CompletedCount() == 0 {
			return runningGlyph(f, th) + " starting agent"
		}
		return th.muted.Render(GlyphPending + " waiting for next phase")
	}
	return fmt.Sprintf("%s Phase %d · %s", runningGlyph(f, th), cur.Index, phaseActivity(*cur))
}

func runningGlyph(f Frame, th theme) string {
	if f.Spinner != "" {
		return th.running.Render(f.Spinner)
	}
	return th.running.Render(GlyphRunning)
}

// phaseActivity describes what a running phase is doing.
func phaseActivity(p phase.Phase) string {
	var running []string
	for _, t := range p.Tools {
		if t.Status == event.ToolRunning {
			running = append(running, t.Name)
		}
	}
	switch {
	case len(running) > 0:
		return "running " + strings.Join(running, ", ")
	case !p.ThinkingDone && len(p.Tools) == 0:
		return "thinking"
	default:
		return fmt.Sprintf("%d tools done", len(p.Tools))
	}
}

func renderPhaseTree(f Frame, th theme, width int) []string {
	var lines []string
	for _, p := range f.Phases.All() {
		var glyph string
		var dur time.Duration
		if p.State == phase.Running {
			glyph = runningGlyph(f, th)
			dur = f.Now.Sub(p.Start)
		} else {
			glyph = th.success.Render(GlyphSuccess)
			for _, t := range p.Tools {
				if t.Status == event.ToolFailed {
					glyph = th.failure.Render(GlyphError)
					break
				}
			}
			dur = p.End.Sub(p.Start)
		}

		header := fmt.Sprintf("%s Phase %d", glyph, p.Index)
		meta := []string{}
		if p.MessageCount > 0 {
			meta = append(meta, fmt.Sprintf("%d msgs", p.MessageCount))
		}
		if p.State == phase.Running {
			meta = append(meta, phaseActivity(p))
		} else if len(p.Tools) > 0 {
			meta = append(meta, fmt.Sprintf("%d tools", len(p.Tools)))
		}
		meta = append(meta, util.FormatDuration(dur))
		lines = append(lines, header+th.muted.Render(" · "+strings.Join(meta, " · ")))

		for _, t := range p.Tools {
			lines = append(lines, renderTool(t, f, th, width))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, runningGlyph(f, th)+" starting agent")
	}
	return lines
}

func renderTool(t phase.ToolNode, f Frame, th theme, width int) string {
	var glyph string
	dur := t.Duration
	switch t.Status {
	case event.ToolRunning:
		glyph = runningGlyph(f, th)
		dur = f.Now.Sub(t.Started)
	case event.ToolFailed:
		glyph = th.failure.Render(GlyphError)
	default:
		glyph = th.success.Render(GlyphSuccess)
	}

	parts := []string{"    " + glyph + " " + t.Name}
	if t.Command != "" {
		parts = append(parts, th.muted.Render(util.TruncateANSI(t.Command, width/3)))
	}
	if dur > 0 {
		parts = append(parts, th.muted.Render(util.FormatDuration(dur)))
	}
	if t.Summary != "" {
		parts = append(parts, t.Summary)
	}
	return strings.Join(parts, "  ")
}

func nameWidth(s tracker.Snapshot) int {
	w := 8
	for _, e := range s.Entries {
		if n := lipgloss.Width(e.Name); n > w {
			w = n
		}
	}
	if w > 24 {
		w = 24
	}
	return w
}

func renderServices(s tracker.Snapshot, th theme, width int, spinner string) []string {
	if len(s.Entries) == 0 {
		return nil
	}
	lines := []string{th.title.Render("Services")}
	nw := nameWidth(s)
	for _, e := range s.Entries {
		glyph, style := th.stateGlyph(e.State)
		if e.State == tracker.Running && spinner != "" {
			glyph = spinner
		}
		line := fmt.Sprintf("  %s %s %s", style.Render(glyph), util.FitWidth(e.Name, nw), style.Render(util.PadRight(e.State.String(), 8)))
		if e.Detail != "" {
			line += " " + util.TruncateANSI(e.Detail, width/2)
		}
		if d := e.Elapsed(); d > 0 {
			line += th.muted.Render("  " + util.FormatDuration(d))
		}
		lines = append(lines, line)
	}
	return lines
}

// serviceTally renders "services 2/5 done · ✓ 2  ✗ 0  ⊘ 0".
func serviceTally(s tracker.Snapshot, th theme) string {
	c := s.Counts()
	return fmt.Sprintf("services %d/%d done · %s %d  %s %d  %s %d",
		s.Done(), len(s.Entries),
		th.success.Render(GlyphSuccess), c.Success,
		th.failure.Render(GlyphError), c.Error,
		th.muted.Render(GlyphSkipped), c.Skipped)
}
