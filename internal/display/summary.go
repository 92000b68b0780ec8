package display

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Iron-Ham/shepherd/internal/extract"
	"github.com/Iron-Ham/shepherd/internal/report"
	"github.com/Iron-Ham/shepherd/internal/util"
)

// detailWidth caps the detail column of the report table.
const detailWidth = 48

// RenderReport draws the final report: a per-target table, the outcome
// tally, the payload summary and where the transcript was written.
// It is printed at every verbosity, including Quiet.
func RenderReport(r *report.Report, opts Options) string {
	th := newTheme(opts.Renderer)

	var b strings.Builder
	b.WriteString(th.title.Render("shepherd "+r.Workflow) + th.muted.Render(fmt.Sprintf(" · %s · %s", reasonLabel(r), util.FormatDuration(r.Duration()))))
	b.WriteString("\n")

	if len(r.Targets) > 0 {
		b.WriteString(targetTable(r.Targets, th))
		b.WriteString("\n")
		b.WriteString(tallyLine(r, th))
		b.WriteString("\n")
		if line := testsLine(r.Targets); line != "" {
			b.WriteString(line + "\n")
		}
	}
	if line := extractionLine(r.Extraction, th); line != "" {
		b.WriteString(line + "\n")
	}
	for _, w := range warningLines(r) {
		b.WriteString(th.warning.Render(w) + "\n")
	}
	if r.Error != "" {
		b.WriteString(th.failure.Render("Error: "+r.Error) + "\n")
	}
	if r.LogPath != "" {
		b.WriteString(th.muted.Render("Log: "+r.LogPath) + "\n")
	}
	return b.String()
}

func reasonLabel(r *report.Report) string {
	if r.Reason == "" {
		return "completed"
	}
	return strings.ReplaceAll(r.Reason, "_", " ")
}

func targetTable(targets []report.Target, th theme) string {
	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		glyph, style := th.outcomeGlyph(t.Outcome)
		tests := ""
		if t.Tests != nil {
			tests = fmt.Sprintf("%d/%d", t.Tests.Passed, t.Tests.Run)
		}
		elapsed := ""
		if t.ElapsedSeconds > 0 {
			elapsed = util.FormatDuration(time.Duration(t.ElapsedSeconds * float64(time.Second)))
		}
		rows = append(rows, []string{
			style.Render(glyph),
			t.Name,
			style.Render(t.Outcome),
			util.TruncateANSI(t.Detail, detailWidth),
			tests,
			elapsed,
		})
	}

	cell := th.muted.UnsetForeground().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.border).
		Headers("", "Target", "Outcome", "Detail", "Tests", "Time").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.header
			}
			return cell
		}).
		String()
}

func tallyLine(r *report.Report, th theme) string {
	c := r.Counts
	parts := []string{
		th.success.Render(fmt.Sprintf("%s %d success", GlyphSuccess, c.Success)),
		th.failure.Render(fmt.Sprintf("%s %d error", GlyphError, c.Error)),
		th.muted.Render(fmt.Sprintf("%s %d skipped", GlyphSkipped, c.Skipped)),
	}
	if c.Incomplete > 0 {
		parts = append(parts, th.warning.Render(fmt.Sprintf("%s %d incomplete", GlyphIncomplete, c.Incomplete)))
	}
	if c.Unknown > 0 {
		parts = append(parts, th.warning.Render(fmt.Sprintf("%s %d unknown", GlyphUnknown, c.Unknown)))
	}
	return strings.Join(parts, "  ")
}

// testsLine sums test counts across targets; empty when none reported.
func testsLine(targets []report.Target) string {
	var run, passed, failed int
	seen := false
	for _, t := range targets {
		if t.Tests == nil {
			continue
		}
		seen = true
		run += t.Tests.Run
		passed += t.Tests.Passed
		failed += t.Tests.Failed
	}
	if !seen {
		return ""
	}
	return fmt.Sprintf("Tests: %d run, %d passed, %d failed", run, passed, failed)
}

func extractionLine(x *report.Extraction, th theme) string {
	if x == nil {
		return ""
	}
	if x.Failure == nil {
		line := "Payload: recovered via " + x.Strategy
		if x.Repaired {
			line += " (repaired)"
		}
		return th.success.Render(line)
	}
	f := x.Failure
	switch f.Kind {
	case extract.KindSchemaInvalid:
		return th.failure.Render(fmt.Sprintf("Payload: schema invalid (%s)", strings.Join(f.Violations, "; ")))
	default:
		line := "Payload: extraction failed, tried " + strings.Join(f.Attempted, ", ")
		if f.LastError != "" {
			line += ": " + f.LastError
		}
		return th.failure.Render(line)
	}
}

func warningLines(r *report.Report) []string {
	var out []string
	if r.SilenceWarnings > 0 {
		out = append(out, fmt.Sprintf("Warning: agent was silent %d times", r.SilenceWarnings))
	}
	if len(r.IgnoredMarkers) > 0 {
		names := make([]string, 0, len(r.IgnoredMarkers))
		for name := range r.IgnoredMarkers {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			names[i] = fmt.Sprintf("%s (%d)", name, r.IgnoredMarkers[name])
		}
		out = append(out, "Warning: markers for undeclared targets: "+strings.Join(names, ", "))
	}
	for _, t := range r.Targets {
		if t.DroppedMarkers > 0 {
			out = append(out, fmt.Sprintf("Warning: %s: %d late markers dropped", t.Name, t.DroppedMarkers))
		}
	}
	return out
}
