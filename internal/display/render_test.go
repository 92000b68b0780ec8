package display

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/extract"
	"github.com/Iron-Ham/shepherd/internal/phase"
	"github.com/Iron-Ham/shepherd/internal/report"
	"github.com/Iron-Ham/shepherd/internal/tracker"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func sampleFrame() Frame {
	return Frame{
		Workflow:  "status",
		StartedAt: t0,
		Now:       at(65),
		Phases: phase.Snapshot{
			Completed: []phase.Phase{{
				Index: 1, Start: at(0), End: at(20), MessageCount: 3, ThinkingDone: true, State: phase.Completed,
				Tools: []phase.ToolNode{{Name: "list_repos", Status: event.ToolSuccess, Duration: 2 * time.Second, Summary: "12 repos"}},
			}},
			Current: &phase.Phase{
				Index: 2, Start: at(20), ThinkingDone: true, State: phase.Running,
				Tools: []phase.ToolNode{{Name: "bash", Command: "make test", Status: event.ToolRunning, Started: at(50)}},
			},
		},
		Services: tracker.Snapshot{Entries: []tracker.Entry{
			{Name: "billing", State: tracker.Success, Detail: "3 tests passed", StartedAt: at(5), FinishedAt: at(15)},
			{Name: "ledger", State: tracker.Running, Detail: "compiling"},
		}},
		Narrative: []string{"Checking billing", "Running ledger tests"},
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in   string
		want Verbosity
	}{
		{"minimal", Minimal},
		{"verbose", Verbose},
		{"quiet", Quiet},
		{"", Minimal},
		{"loud", Minimal},
	}
	for _, tt := range tests {
		if got := ParseVerbosity(tt.in); got != tt.want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Verbose.String() != "verbose" {
		t.Errorf("Verbose.String() = %q", Verbose.String())
	}
}

func TestRenderMinimal(t *testing.T) {
	out := Render(sampleFrame(), Options{Verbosity: Minimal})

	for _, want := range []string{
		"shepherd status",
		"1m05s",
		"Phase 2 · running bash",
		"1/2 phases complete",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("minimal frame missing %q:\n%s", want, out)
		}
	}
	for _, absent := range []string{"list_repos", "Recent output", "billing", "services"} {
		if strings.Contains(out, absent) {
			t.Errorf("minimal frame should not contain %q:\n%s", absent, out)
		}
	}
}

func TestRenderVerbose(t *testing.T) {
	out := Render(sampleFrame(), Options{Verbosity: Verbose})

	for _, want := range []string{
		"Phase 1",
		"3 msgs",
		"list_repos",
		"12 repos",
		"make test",
		"Phase 2",
		"1/2 phases complete",
		"Services",
		"billing",
		"3 tests passed",
		"services 1/2 done",
		"ledger",
		"running",
		"Recent output:",
		"Running ledger tests",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose frame missing %q:\n%s", want, out)
		}
	}
}

func TestRenderQuietIsEmpty(t *testing.T) {
	if out := Render(sampleFrame(), Options{Verbosity: Quiet}); out != "" {
		t.Errorf("quiet frame = %q, want empty", out)
	}
}

func TestRenderBeforeFirstPhase(t *testing.T) {
	out := Render(Frame{Workflow: "fork", StartedAt: t0, Now: t0}, Options{})
	if !strings.Contains(out, "starting agent") || !strings.Contains(out, "0/0 phases complete") {
		t.Errorf("frame = %q", out)
	}
}

func TestRenderThinkingPhase(t *testing.T) {
	f := Frame{
		Workflow: "test",
		Phases:   phase.Snapshot{Current: &phase.Phase{Index: 1, State: phase.Running}},
	}
	out := Render(f, Options{})
	if !strings.Contains(out, "Phase 1 · thinking") {
		t.Errorf("frame = %q, want thinking phase", out)
	}
}

func TestRenderRespectsWidth(t *testing.T) {
	f := sampleFrame()
	f.Narrative = []string{strings.Repeat("x", 200)}
	const width = 40
	out := Render(f, Options{Verbosity: Verbose, Width: width})
	for _, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > width {
			t.Errorf("line width %d > %d: %q", w, width, line)
		}
	}
}

func TestRenderUsesSpinner(t *testing.T) {
	f := sampleFrame()
	f.Spinner = "◐"
	out := Render(f, Options{})
	if !strings.Contains(out, "◐ Phase 2") {
		t.Errorf("frame = %q, want spinner glyph", out)
	}
}

func TestRenderReport(t *testing.T) {
	r := &report.Report{
		Workflow:        "test",
		DurationSeconds: 42,
		LogPath:         "/tmp/test_20260301_120000.log",
		Targets: []report.Target{
			{Name: "billing", Outcome: report.OutcomeSuccess, Detail: "10 tests passed", Tests: &tracker.TestCounts{Run: 10, Passed: 10}, ElapsedSeconds: 12},
			{Name: "ledger", Outcome: report.OutcomeError, Detail: "2 tests failed", Tests: &tracker.TestCounts{Run: 5, Passed: 3, Failed: 2}},
			{Name: "search", Outcome: report.OutcomeUnknown, DroppedMarkers: 4},
		},
		Counts:          tracker.Counts{Success: 1, Error: 1, Unknown: 1},
		SilenceWarnings: 2,
		IgnoredMarkers:  map[string]int{"ghost": 3},
	}

	out := RenderReport(r, Options{})
	for _, want := range []string{
		"shepherd test",
		"completed",
		"billing",
		"10/10",
		"ledger",
		"2 tests failed",
		"search",
		"unknown",
		"1 success",
		"1 error",
		"1 unknown",
		"Tests: 15 run, 13 passed, 2 failed",
		"silent 2 times",
		"ghost (3)",
		"search: 4 late markers dropped",
		"Log: /tmp/test_20260301_120000.log",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "incomplete") {
		t.Errorf("report should omit a zero incomplete count:\n%s", out)
	}
}

func TestRenderReportExtraction(t *testing.T) {
	tests := []struct {
		name string
		ext  *report.Extraction
		want string
	}{
		{
			name: "recovered",
			ext:  &report.Extraction{Strategy: extract.StrategyFenced},
			want: "Payload: recovered via fenced",
		},
		{
			name: "repaired",
			ext:  &report.Extraction{Strategy: extract.StrategyBackwardScan, Repaired: true},
			want: "backward_scan (repaired)",
		},
		{
			name: "extraction failed",
			ext: &report.Extraction{Failure: &extract.Failure{
				Kind:      extract.KindExtractionFailed,
				Attempted: []string{"fenced", "whole"},
				LastError: "no JSON object found",
			}},
			want: "extraction failed, tried fenced, whole: no JSON object found",
		},
		{
			name: "schema invalid",
			ext: &report.Extraction{Failure: &extract.Failure{
				Kind:       extract.KindSchemaInvalid,
				Violations: []string{"missing property services"},
			}},
			want: "schema invalid (missing property services)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &report.Report{Workflow: "status", Reason: "extraction_failed", Extraction: tt.ext}
			out := RenderReport(r, Options{})
			if !strings.Contains(out, tt.want) {
				t.Errorf("report missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestRenderReportError(t *testing.T) {
	r := &report.Report{Workflow: "fork", Reason: "spawn_failed", Error: "agent not found"}
	out := RenderReport(r, Options{})
	if !strings.Contains(out, "spawn failed") || !strings.Contains(out, "Error: agent not found") {
		t.Errorf("report = %q", out)
	}
}
