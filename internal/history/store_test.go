package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/report"
	"github.com/Iron-Ham/shepherd/internal/tracker"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newReport(id, workflow string, started time.Time) *report.Report {
	return &report.Report{
		RunID:           id,
		Workflow:        workflow,
		StartedAt:       started,
		DurationSeconds: 30,
		Reason:          "completed",
		LogPath:         "/tmp/" + id + ".log",
		Targets: []report.Target{
			{Name: "billing", Outcome: report.OutcomeSuccess},
			{Name: "ledger", Outcome: report.OutcomeError},
		},
		Counts: tracker.Counts{Success: 1, Error: 1},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := newReport("6f1c2a90-aaaa", "status", t0)
	r.Payload = map[string]any{"services": map[string]any{"billing": map[string]any{"status": "ok"}}}
	if err := s.Save(ctx, r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get(ctx, r.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RunID != r.RunID || got.Workflow != "status" || len(got.Targets) != 2 {
		t.Errorf("Get() = %+v", got)
	}
	if !got.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, t0)
	}
	if got.ExitCode() != report.ExitTargetFailures {
		t.Errorf("ExitCode() = %d, want %d", got.ExitCode(), report.ExitTargetFailures)
	}
	if _, ok := got.Payload["services"]; !ok {
		t.Errorf("payload lost: %v", got.Payload)
	}
}

func TestGetByPrefix(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"abc123", "abd456"} {
		if err := s.Save(ctx, newReport(id, "test", t0)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr error
	}{
		{name: "exact", id: "abc123", want: "abc123"},
		{name: "unique prefix", id: "abd", want: "abd456"},
		{name: "ambiguous prefix", id: "ab", wantErr: errors.ErrInvalidInput},
		{name: "missing", id: "zzz", wantErr: ErrRunNotFound},
		{name: "wildcard is literal", id: "a%", wantErr: ErrRunNotFound},
		{name: "empty", id: " ", wantErr: errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Get(ctx, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Get(%q) error = %v, want %v", tt.id, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.id, err)
			}
			if got.RunID != tt.want {
				t.Errorf("Get(%q) = %s, want %s", tt.id, got.RunID, tt.want)
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	reports := []*report.Report{
		newReport("r1", "status", t0),
		newReport("r2", "test", t0.Add(time.Hour)),
		newReport("r3", "status", t0.Add(2*time.Hour)),
	}
	for _, r := range reports {
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].RunID != "r3" || all[2].RunID != "r1" {
		t.Fatalf("List() order = %+v", all)
	}
	if all[0].Targets != 2 || all[0].Succeeded != 1 || all[0].ExitCode != report.ExitTargetFailures {
		t.Errorf("summary = %+v", all[0])
	}
	if all[0].Duration() != 30*time.Second {
		t.Errorf("Duration() = %v", all[0].Duration())
	}

	status, err := s.List(ctx, "status", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(status) != 2 {
		t.Errorf("List(status) = %d runs, want 2", len(status))
	}

	limited, err := s.List(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].RunID != "r3" {
		t.Errorf("List(limit 1) = %+v", limited)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := newReport("same", "fork", t0)
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Reason = "cancelled"
	if err := s.Save(ctx, r); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Reason != "cancelled" {
		t.Errorf("List() = %+v, want one replaced run", all)
	}
}

func TestSaveRequiresRunID(t *testing.T) {
	s := openStore(t)
	if err := s.Save(context.Background(), &report.Report{}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Save() error = %v, want invalid input", err)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), newReport("keep", "status", t0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.Get(context.Background(), "keep"); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}
}
