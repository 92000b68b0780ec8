package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"time":"2026-01-02T10:00:02Z","level":"WARN","msg":"unknown target in status marker","run_id":"r1","workflow":"fork","target":"ghost"}
not json at all
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"run started","run_id":"r1","workflow":"fork","pid":42}
{"time":"2026-01-02T10:00:03Z","level":"DEBUG","msg":"classified line","run_id":"r2","workflow":"status"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(sampleLog), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestAggregateLogs(t *testing.T) {
	entries, err := AggregateLogs(writeSample(t))
	if err != nil {
		t.Fatalf("AggregateLogs failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Message != "run started" {
		t.Errorf("entries not sorted by time: first = %q", entries[0].Message)
	}
	if entries[0].Attrs["pid"] != float64(42) {
		t.Errorf("pid attr = %v, want 42", entries[0].Attrs["pid"])
	}
	if entries[1].Target != "ghost" {
		t.Errorf("target = %q, want ghost", entries[1].Target)
	}
}

func TestAggregateLogsMissing(t *testing.T) {
	if _, err := AggregateLogs(t.TempDir()); err == nil {
		t.Error("expected error for missing debug log")
	}
}

func TestFilterLogs(t *testing.T) {
	entries, err := AggregateLogs(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"empty filter", LogFilter{}, 3},
		{"by run", LogFilter{RunID: "r1"}, 2},
		{"by level", LogFilter{Level: "warn"}, 1},
		{"by workflow", LogFilter{Workflow: "status"}, 1},
		{"by target", LogFilter{Target: "ghost"}, 1},
		{"by message", LogFilter{MessageContains: "started"}, 1},
		{"by start time", LogFilter{StartTime: time.Date(2026, 1, 2, 10, 0, 2, 0, time.UTC)}, 2},
		{"combined", LogFilter{RunID: "r1", Level: "ERROR"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(FilterLogs(entries, tt.filter)); got != tt.want {
				t.Errorf("FilterLogs() returned %d entries, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteLogEntries(t *testing.T) {
	entries, err := AggregateLogs(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}

	for _, format := range []string{"json", "text", "csv"} {
		var buf bytes.Buffer
		if err := WriteLogEntries(&buf, entries, format); err != nil {
			t.Fatalf("WriteLogEntries(%s) failed: %v", format, err)
		}
		if !strings.Contains(buf.String(), "run started") {
			t.Errorf("%s output missing message:\n%s", format, buf.String())
		}
	}

	var buf bytes.Buffer
	if err := WriteLogEntries(&buf, entries, "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExportLogEntries(t *testing.T) {
	out := filepath.Join(t.TempDir(), "export.txt")
	if err := ExportLogEntries([]LogEntry{{Level: LevelInfo, Message: "hello", RunID: "r9"}}, out, "text"); err != nil {
		t.Fatalf("ExportLogEntries failed: %v", err)
	}
	content, _ := os.ReadFile(out)
	if !strings.Contains(string(content), "run=r9") {
		t.Errorf("export missing run context: %q", content)
	}
}
