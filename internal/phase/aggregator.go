// Package phase folds classified events into an ordered history of
// reasoning phases and the tool calls each one triggered.
package phase

import (
	"strings"
	"time"

	"github.com/Iron-Ham/shepherd/internal/event"
)

// State is the lifecycle state of a Phase.
type State int

const (
	Running State = iota
	Completed
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "completed"
}

// ToolNode is one tool invocation inside a Phase.
type ToolNode struct {
	Name     string
	Command  string
	Status   event.ToolStatus
	Summary  string
	Duration time.Duration
	Started  time.Time
}

// Phase is one reasoning burst plus the tool calls it triggered.
type Phase struct {
	Index        int // 1-based
	Start        time.Time
	End          time.Time // zero while Running
	MessageCount int
	// Implicit is set when the phase was opened by a tool call rather than
	// a reasoning marker.
	Implicit     bool
	ThinkingDone bool
	Tools        []ToolNode
	State        State
}

// RunningTools counts tool nodes still awaiting completion.
func (p Phase) RunningTools() int {
	n := 0
	for _, t := range p.Tools {
		if t.Status == event.ToolRunning {
			n++
		}
	}
	return n
}

// Snapshot is an immutable copy of aggregator state.
type Snapshot struct {
	Completed []Phase
	Current   *Phase
}

// CompletedCount is the number of archived phases.
func (s Snapshot) CompletedCount() int { return len(s.Completed) }

// Total counts archived phases plus the running one, if any.
func (s Snapshot) Total() int {
	if s.Current != nil {
		return len(s.Completed) + 1
	}
	return len(s.Completed)
}

// All returns archived phases followed by the running one.
func (s Snapshot) All() []Phase {
	out := append([]Phase(nil), s.Completed...)
	if s.Current != nil {
		out = append(out, *s.Current)
	}
	return out
}

// Aggregator builds the phase tree. It is not safe for concurrent use:
// exactly one goroutine applies events, and readers take Snapshots.
type Aggregator struct {
	completed []Phase
	current   *Phase
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Apply folds one event observed at the given time. Events that do not
// concern phases are ignored.
func (a *Aggregator) Apply(ev event.Event, at time.Time) {
	switch e := ev.(type) {
	case event.ThinkingStart:
		a.archive(at)
		a.open(at, false)
		a.current.MessageCount = e.Count
	case event.ThinkingComplete:
		if a.current != nil {
			a.current.ThinkingDone = true
		}
	case event.ToolStart:
		if a.current == nil {
			a.open(at, true)
		}
		a.current.Tools = append(a.current.Tools, ToolNode{
			Name:    e.Name,
			Command: e.Command,
			Status:  event.ToolRunning,
			Started: at,
		})
	case event.ToolComplete:
		a.complete(e, at)
	}
}

// complete updates the most recent running node with a matching name,
// searching the current phase first and then archived phases newest first.
// With no match a completed node is appended to the current phase.
func (a *Aggregator) complete(e event.ToolComplete, at time.Time) {
	if a.current != nil && completeIn(a.current, e, at) {
		return
	}
	for i := len(a.completed) - 1; i >= 0; i-- {
		if completeIn(&a.completed[i], e, at) {
			return
		}
	}

	if a.current == nil {
		a.open(at, true)
	}
	a.current.Tools = append(a.current.Tools, ToolNode{
		Name:     e.Name,
		Status:   e.Status,
		Summary:  e.Summary,
		Duration: e.Duration,
		Started:  at.Add(-e.Duration),
	})
}

func completeIn(p *Phase, e event.ToolComplete, at time.Time) bool {
	for i := len(p.Tools) - 1; i >= 0; i-- {
		node := &p.Tools[i]
		if node.Status != event.ToolRunning || !strings.EqualFold(node.Name, e.Name) {
			continue
		}
		node.Status = e.Status
		node.Summary = e.Summary
		node.Duration = e.Duration
		if node.Duration == 0 {
			node.Duration = at.Sub(node.Started)
		}
		return true
	}
	return false
}

func (a *Aggregator) open(at time.Time, implicit bool) {
	a.current = &Phase{
		Index:    len(a.completed) + 1,
		Start:    at,
		Implicit: implicit,
		State:    Running,
	}
}

func (a *Aggregator) archive(at time.Time) {
	if a.current == nil {
		return
	}
	a.current.State = Completed
	a.current.End = at
	a.completed = append(a.completed, *a.current)
	a.current = nil
}

// Finish archives the running phase, if any. Call it once the output
// stream has ended.
func (a *Aggregator) Finish(at time.Time) {
	a.archive(at)
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{Completed: make([]Phase, len(a.completed))}
	for i, p := range a.completed {
		s.Completed[i] = clonePhase(p)
	}
	if a.current != nil {
		cur := clonePhase(*a.current)
		s.Current = &cur
	}
	return s
}

func clonePhase(p Phase) Phase {
	p.Tools = append([]ToolNode(nil), p.Tools...)
	return p
}
