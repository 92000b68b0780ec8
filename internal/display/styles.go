package display

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/shepherd/internal/report"
	"github.com/Iron-Ham/shepherd/internal/tracker"
)

// Colors meet WCAG AA contrast on dark backgrounds.
var (
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	RunningColor   = lipgloss.Color("#60A5FA") // Blue
)

// Status glyphs.
const (
	GlyphPending    = "⏸"
	GlyphRunning    = "⏳"
	GlyphSuccess    = "✓"
	GlyphError      = "✗"
	GlyphSkipped    = "⊘"
	GlyphUnknown    = "?"
	GlyphIncomplete = "…"
)

// theme holds the styles used for one output.
type theme struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	running lipgloss.Style
	border  lipgloss.Style
	header  lipgloss.Style
}

// plainRenderer renders without color regardless of the terminal.
var plainRenderer = lipgloss.NewRenderer(io.Discard)

func newTheme(r *lipgloss.Renderer) theme {
	if r == nil {
		r = plainRenderer
	}
	return theme{
		title:   r.NewStyle().Bold(true).Foreground(PrimaryColor),
		muted:   r.NewStyle().Foreground(MutedColor),
		success: r.NewStyle().Foreground(SecondaryColor),
		failure: r.NewStyle().Foreground(ErrorColor),
		warning: r.NewStyle().Foreground(WarningColor),
		running: r.NewStyle().Foreground(RunningColor),
		border:  r.NewStyle().Foreground(BorderColor),
		header:  r.NewStyle().Bold(true).Foreground(PrimaryColor).Padding(0, 1),
	}
}

// stateGlyph returns the glyph and style for a live tracker state.
func (t theme) stateGlyph(s tracker.State) (string, lipgloss.Style) {
	switch s {
	case tracker.Running:
		return GlyphRunning, t.running
	case tracker.Success:
		return GlyphSuccess, t.success
	case tracker.Error:
		return GlyphError, t.failure
	case tracker.Skipped:
		return GlyphSkipped, t.muted
	default:
		return GlyphPending, t.muted
	}
}

// outcomeGlyph returns the glyph and style for a final outcome.
func (t theme) outcomeGlyph(outcome string) (string, lipgloss.Style) {
	switch outcome {
	case report.OutcomeSuccess:
		return GlyphSuccess, t.success
	case report.OutcomeError:
		return GlyphError, t.failure
	case report.OutcomeSkipped:
		return GlyphSkipped, t.muted
	case report.OutcomeIncomplete:
		return GlyphIncomplete, t.warning
	default:
		return GlyphUnknown, t.warning
	}
}
