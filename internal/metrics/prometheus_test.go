package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/shepherd/internal/extract"
	"github.com/Iron-Ham/shepherd/internal/report"
)

func sampleReport() *report.Report {
	return &report.Report{
		Workflow:        "status",
		Reason:          "completed",
		DurationSeconds: 42,
		Targets: []report.Target{
			{Name: "billing", Outcome: report.OutcomeSuccess},
			{Name: "ledger", Outcome: report.OutcomeSuccess},
			{Name: "search", Outcome: report.OutcomeUnknown},
		},
		SilenceWarnings: 2,
		Extraction:      &report.Extraction{Strategy: extract.StrategyFenced},
	}
}

func TestObserveLineAndEvents(t *testing.T) {
	p := NewPrometheusRecorder()
	p.ObserveLine()
	p.ObserveLine()
	p.ObserveEvent("tool_start")
	p.ObserveEvent("tool_start")
	p.ObserveEvent("service_status")

	if got := testutil.ToFloat64(p.linesTotal); got != 2 {
		t.Errorf("lines = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.eventsTotal.WithLabelValues("tool_start")); got != 2 {
		t.Errorf("tool_start events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.eventsTotal.WithLabelValues("service_status")); got != 1 {
		t.Errorf("service_status events = %v, want 1", got)
	}
}

func TestObserveRun(t *testing.T) {
	p := NewPrometheusRecorder()
	p.ObserveRun(sampleReport())

	if got := testutil.ToFloat64(p.runsTotal.WithLabelValues("status", "completed")); got != 1 {
		t.Errorf("runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.targetsTotal.WithLabelValues("status", report.OutcomeSuccess)); got != 2 {
		t.Errorf("success targets = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.targetsTotal.WithLabelValues("status", report.OutcomeUnknown)); got != 1 {
		t.Errorf("unknown targets = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.extractionTotal.WithLabelValues("status", extract.StrategyFenced)); got != 1 {
		t.Errorf("fenced extractions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.silenceTotal); got != 2 {
		t.Errorf("silence warnings = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(p.runDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestObserveRunExtractionFailure(t *testing.T) {
	p := NewPrometheusRecorder()
	r := sampleReport()
	r.Reason = "schema_invalid"
	r.Extraction = &report.Extraction{Failure: &extract.Failure{Kind: extract.KindSchemaInvalid}}
	p.ObserveRun(r)

	if got := testutil.ToFloat64(p.extractionTotal.WithLabelValues("status", SchemaInvalid)); got != 1 {
		t.Errorf("schema_invalid extractions = %v, want 1", got)
	}
}

func TestObserveRunNil(t *testing.T) {
	p := NewPrometheusRecorder()
	p.ObserveRun(nil)
	if n := testutil.CollectAndCount(p.runsTotal); n != 0 {
		t.Errorf("runs series = %d, want 0", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	p := NewPrometheusRecorder()
	p.ObserveLine()
	p.ObserveRun(sampleReport())

	path := filepath.Join(t.TempDir(), "nested", "shepherd.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"shepherd_lines_total 1",
		`shepherd_runs_total{reason="completed",workflow="status"} 1`,
		"shepherd_run_duration_seconds_bucket",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestNop(t *testing.T) {
	r := Nop()
	r.ObserveLine()
	r.ObserveEvent("x")
	r.ObserveRun(sampleReport())
}
