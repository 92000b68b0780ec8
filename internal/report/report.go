// Package report assembles the final outcome of a run from the tracker,
// phase and supervisor snapshots and the extraction result.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/extract"
	"github.com/Iron-Ham/shepherd/internal/phase"
	"github.com/Iron-Ham/shepherd/internal/tracker"
)

// Target outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSkipped    = "skipped"
	OutcomeIncomplete = "incomplete"
	OutcomeUnknown    = "unknown"
)

// Process exit codes.
const (
	ExitOK             = 0
	ExitTargetFailures = 1
	ExitPayloadInvalid = 2
	ExitTimeout        = 124
	ExitSpawnFailed    = 127
	ExitCancelled      = 130
)

// Target is the final state of one declared target.
type Target struct {
	Name           string              `json:"name"`
	Outcome        string              `json:"outcome"`
	Detail         string              `json:"detail,omitempty"`
	Tests          *tracker.TestCounts `json:"tests,omitempty"`
	ElapsedSeconds float64             `json:"elapsed_seconds,omitempty"`
	LateMarkers    int                 `json:"late_markers,omitempty"`
	DroppedMarkers int                 `json:"dropped_markers,omitempty"`
}

// Extraction summarizes payload recovery for data-gathering workflows.
type Extraction struct {
	Strategy string           `json:"strategy,omitempty"`
	Repaired bool             `json:"repaired,omitempty"`
	Failure  *extract.Failure `json:"failure,omitempty"`
}

// Report is the final outcome of a run.
type Report struct {
	RunID           string         `json:"run_id"`
	Workflow        string         `json:"workflow"`
	StartedAt       time.Time      `json:"started_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Reason          string         `json:"reason"`
	Error           string         `json:"error,omitempty"`
	ProcessExitCode int            `json:"process_exit_code"`
	LogPath         string         `json:"log_path,omitempty"`
	Targets         []Target       `json:"targets"`
	Counts          tracker.Counts `json:"counts"`
	Phases          int            `json:"phases"`
	Lines           int            `json:"lines"`
	SilenceWarnings int            `json:"silence_warnings,omitempty"`
	IgnoredMarkers  map[string]int `json:"ignored_markers,omitempty"`
	Extraction      *Extraction    `json:"extraction,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// Input collects everything a report is built from.
type Input struct {
	RunID           string
	Workflow        string
	LogPath         string
	StartedAt       time.Time
	Duration        time.Duration
	Services        tracker.Snapshot
	Phases          phase.Snapshot
	ProcessExitCode int
	Lines           int
	SilenceWarnings int
	Extraction      *extract.Result
	// Err is the run's terminal error; nil for a completed run.
	Err error
}

// Build assembles a Report.
func Build(in Input) *Report {
	r := &Report{
		RunID:           in.RunID,
		Workflow:        in.Workflow,
		StartedAt:       in.StartedAt,
		DurationSeconds: in.Duration.Seconds(),
		Reason:          errors.ReasonCode(in.Err),
		ProcessExitCode: in.ProcessExitCode,
		LogPath:         in.LogPath,
		Counts:          in.Services.Counts(),
		Phases:          in.Phases.Total(),
		Lines:           in.Lines,
		SilenceWarnings: in.SilenceWarnings,
	}
	if in.Err != nil {
		r.Error = in.Err.Error()
	}
	if len(in.Services.Ignored) > 0 {
		r.IgnoredMarkers = in.Services.Ignored
	}

	for _, e := range in.Services.Entries {
		t := Target{
			Name:           e.Name,
			Outcome:        Outcome(e),
			Detail:         e.Detail,
			ElapsedSeconds: e.Elapsed().Seconds(),
			LateMarkers:    e.LateMarkers,
			DroppedMarkers: e.Dropped,
		}
		if !e.Tests.IsZero() {
			tests := e.Tests
			t.Tests = &tests
		}
		r.Targets = append(r.Targets, t)
	}

	if res := in.Extraction; res != nil {
		r.Extraction = &Extraction{Strategy: res.Strategy, Repaired: res.Repaired, Failure: res.Failure}
		if res.OK() {
			r.Payload = res.Payload
		}
	}
	return r
}

// Outcome maps a tracker entry onto its final outcome. A target that never
// received a marker is unknown, distinct from an explicit error.
func Outcome(e tracker.Entry) string {
	switch e.State {
	case tracker.Success:
		return OutcomeSuccess
	case tracker.Error:
		return OutcomeError
	case tracker.Skipped:
		return OutcomeSkipped
	case tracker.Running:
		return OutcomeIncomplete
	default:
		if e.HasData() {
			return OutcomeIncomplete
		}
		return OutcomeUnknown
	}
}

// Duration returns the run duration.
func (r *Report) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}

// Succeeded reports whether the run completed and no target failed or
// ended without a result.
func (r *Report) Succeeded() bool {
	return r.ExitCode() == ExitOK
}

// ExitCode maps the report onto the shepherd process exit status.
func (r *Report) ExitCode() int {
	switch r.Reason {
	case errors.ReasonSpawnFailed:
		return ExitSpawnFailed
	case errors.ReasonTimeout:
		return ExitTimeout
	case errors.ReasonCancelled:
		return ExitCancelled
	case errors.ReasonExtractionFailed, errors.ReasonSchemaInvalid:
		return ExitPayloadInvalid
	case errors.ReasonProcessFailed:
		return ExitTargetFailures
	}
	if r.Counts.Error > 0 || r.Counts.Incomplete > 0 || r.Counts.Unknown > 0 {
		return ExitTargetFailures
	}
	return ExitOK
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Decode reads a report written by WriteJSON.
func Decode(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
