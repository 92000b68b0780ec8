// Package tracker maintains the per-target state machine driven by status
// markers in agent output.
//
// Each declared target starts Pending and moves along
//
//	Pending -> Running -> Success | Error
//	Pending -> Skipped
//
// Success, Error and Skipped are terminal. Markers arriving after a target
// is terminal only refresh its detail text, up to a per-target tolerance;
// beyond that they are logged once and dropped.
package tracker

import (
	"time"

	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/logging"
)

// State is a target's position in its lifecycle.
type State int

const (
	Pending State = iota
	Running
	Success
	Error
	Skipped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Success:
		return "success"
	case Error:
		return "error"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == Success || s == Error || s == Skipped
}

// canTransition reports whether from -> to is an edge of the lifecycle.
func canTransition(from, to State) bool {
	switch from {
	case Pending:
		return to != Pending
	case Running:
		return to == Success || to == Error
	default:
		return false
	}
}

// DefaultMaxLateMarkers is the per-target tolerance for markers received
// after a terminal state.
const DefaultMaxLateMarkers = 20

// Entry is the tracked state of one target.
type Entry struct {
	Name   string
	State  State
	Detail string
	Tests  TestCounts

	FirstSeen  time.Time // first marker; zero if none arrived
	StartedAt  time.Time // entered Running
	FinishedAt time.Time // entered a terminal state
	LastUpdate time.Time

	Markers     int // markers applied, including detail-only ones
	LateMarkers int // markers received after a terminal state
	Dropped     int // late markers beyond the tolerance
}

// HasData reports whether any marker ever reached this target.
func (e Entry) HasData() bool { return e.Markers > 0 }

// Elapsed is the time from Running to terminal, or zero.
func (e Entry) Elapsed() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Counts aggregates entries by outcome. Unknown counts targets that never
// received a marker; Incomplete counts targets still Running.
type Counts struct {
	Success    int `json:"success"`
	Error      int `json:"error"`
	Skipped    int `json:"skipped"`
	Incomplete int `json:"incomplete"`
	Unknown    int `json:"unknown"`
}

// Snapshot is an immutable copy of all entries in declaration order.
type Snapshot struct {
	Entries []Entry
	// Ignored counts markers per unknown target name.
	Ignored map[string]int
}

// Counts tallies the snapshot.
func (s Snapshot) Counts() Counts {
	var c Counts
	for _, e := range s.Entries {
		switch e.State {
		case Success:
			c.Success++
		case Error:
			c.Error++
		case Skipped:
			c.Skipped++
		case Running:
			c.Incomplete++
		default:
			c.Unknown++
		}
	}
	return c
}

// Done counts entries in a terminal state.
func (s Snapshot) Done() int {
	n := 0
	for _, e := range s.Entries {
		if e.State.Terminal() {
			n++
		}
	}
	return n
}

// Tracker is not safe for concurrent use: one goroutine applies events and
// readers take Snapshots.
type Tracker struct {
	entries []Entry
	index   map[string]int
	ignored map[string]int
	maxLate int
	logger  *logging.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for anomalies.
func WithLogger(l *logging.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMaxLateMarkers sets the late-marker tolerance per target.
func WithMaxLateMarkers(n int) Option {
	return func(t *Tracker) {
		if n >= 0 {
			t.maxLate = n
		}
	}
}

// New creates a Tracker for the declared targets. Duplicate names, after
// normalization, are tracked once.
func New(targets []string, opts ...Option) *Tracker {
	t := &Tracker{
		index:   make(map[string]int, len(targets)),
		ignored: make(map[string]int),
		maxLate: DefaultMaxLateMarkers,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, name := range targets {
		key := Normalize(name)
		if _, dup := t.index[key]; dup || key == "" {
			continue
		}
		t.index[key] = len(t.entries)
		t.entries = append(t.entries, Entry{Name: name})
	}
	return t
}

// Apply folds one event observed at the given time. Only ServiceStatus
// events are relevant; others are ignored.
func (t *Tracker) Apply(ev event.Event, at time.Time) {
	st, ok := ev.(event.ServiceStatus)
	if !ok {
		return
	}
	t.Observe(st.Target, Interpret(st.Glyph, st.Narrative), st.Narrative, at)
}

// Observe records that target announced state with the given detail.
// It returns false when the marker was ignored.
func (t *Tracker) Observe(target string, state State, detail string, at time.Time) bool {
	i, ok := t.index[Normalize(target)]
	if !ok {
		t.ignored[target]++
		if t.ignored[target] == 1 {
			t.logger.Warn("status marker for undeclared target ignored", "target", target)
		}
		return false
	}
	e := &t.entries[i]

	if e.State.Terminal() {
		e.LateMarkers++
		if e.LateMarkers > t.maxLate {
			e.Dropped++
			if e.Dropped == 1 {
				t.logger.WithTarget(e.Name).Warn("late status markers exceed tolerance, ignoring further markers",
					"state", e.State.String(), "tolerance", t.maxLate)
			}
			return false
		}
		if state != e.State {
			t.logger.WithTarget(e.Name).Debug("transition rejected for finished target",
				"state", e.State.String(), "announced", state.String())
		}
		t.touch(e, detail, at)
		return true
	}

	if state != e.State {
		if canTransition(e.State, state) {
			t.transition(e, state, at)
		} else {
			t.logger.WithTarget(e.Name).Debug("transition rejected",
				"from", e.State.String(), "to", state.String())
		}
	}
	t.touch(e, detail, at)
	return true
}

func (t *Tracker) transition(e *Entry, to State, at time.Time) {
	if e.State == Pending && to != Skipped {
		e.StartedAt = at
	}
	e.State = to
	if to.Terminal() {
		e.FinishedAt = at
	}
}

func (t *Tracker) touch(e *Entry, detail string, at time.Time) {
	if e.FirstSeen.IsZero() {
		e.FirstSeen = at
	}
	if detail != "" {
		e.Detail = detail
		e.Tests = e.Tests.merge(detail)
	}
	e.LastUpdate = at
	e.Markers++
}

// Targets returns declared target names in declaration order.
func (t *Tracker) Targets() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.Name
	}
	return names
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		Entries: append([]Entry(nil), t.entries...),
		Ignored: make(map[string]int, len(t.ignored)),
	}
	for k, v := range t.ignored {
		s.Ignored[k] = v
	}
	return s
}
