package event

import "time"

// Event is one classified line of agent output.
type Event interface {
	// EventType returns a string identifier, "category.action" by convention.
	EventType() string

	// Raw returns the source line the event was classified from.
	Raw() string
}

// Event type identifiers.
const (
	TypeToolStart        = "tool.start"
	TypeToolComplete     = "tool.complete"
	TypeThinkingStart    = "thinking.start"
	TypeThinkingComplete = "thinking.complete"
	TypeServiceStatus    = "service.status"
	TypeNarrative        = "narrative"
)

type baseEvent struct {
	eventType string
	raw       string
}

func (e baseEvent) EventType() string { return e.eventType }
func (e baseEvent) Raw() string       { return e.raw }

// ToolStatus is the outcome of a tool invocation.
type ToolStatus int

const (
	ToolRunning ToolStatus = iota
	ToolSuccess
	ToolFailed
)

func (s ToolStatus) String() string {
	switch s {
	case ToolRunning:
		return "running"
	case ToolSuccess:
		return "success"
	case ToolFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Reasoning Events
// -----------------------------------------------------------------------------

// ThinkingStart marks the beginning of a reasoning burst. Count is the
// message count the agent reported, or 0 when none was shown.
type ThinkingStart struct {
	baseEvent
	Count int
}

// NewThinkingStart creates a ThinkingStart event.
func NewThinkingStart(raw string, count int) ThinkingStart {
	return ThinkingStart{baseEvent: baseEvent{TypeThinkingStart, raw}, Count: count}
}

// ThinkingComplete marks the end of a reasoning burst.
type ThinkingComplete struct {
	baseEvent
}

// NewThinkingComplete creates a ThinkingComplete event.
func NewThinkingComplete(raw string) ThinkingComplete {
	return ThinkingComplete{baseEvent: baseEvent{TypeThinkingComplete, raw}}
}

// -----------------------------------------------------------------------------
// Tool Events
// -----------------------------------------------------------------------------

// ToolStart is emitted when the agent announces a tool call.
type ToolStart struct {
	baseEvent
	Name    string // Tool name as printed, e.g. "read_file" or "shell"
	Command string // Echoed shell command or argument text, if any
}

// NewToolStart creates a ToolStart event.
func NewToolStart(raw, name, command string) ToolStart {
	return ToolStart{baseEvent: baseEvent{TypeToolStart, raw}, Name: name, Command: command}
}

// ToolComplete is emitted when the agent reports a finished tool call.
type ToolComplete struct {
	baseEvent
	Name     string
	Status   ToolStatus // ToolSuccess or ToolFailed
	Summary  string
	Duration time.Duration // Zero when the line carried no duration
}

// NewToolComplete creates a ToolComplete event.
func NewToolComplete(raw, name string, status ToolStatus, summary string, duration time.Duration) ToolComplete {
	return ToolComplete{
		baseEvent: baseEvent{TypeToolComplete, raw},
		Name:      name,
		Status:    status,
		Summary:   summary,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Target Events
// -----------------------------------------------------------------------------

// ServiceStatus is a "<glyph> <target>: <narrative>" contract line.
type ServiceStatus struct {
	baseEvent
	Glyph     string
	Target    string
	Narrative string
}

// NewServiceStatus creates a ServiceStatus event.
func NewServiceStatus(raw, glyph, target, narrative string) ServiceStatus {
	return ServiceStatus{
		baseEvent: baseEvent{TypeServiceStatus, raw},
		Glyph:     glyph,
		Target:    target,
		Narrative: narrative,
	}
}

// -----------------------------------------------------------------------------
// Fallback
// -----------------------------------------------------------------------------

// RawNarrative is any line no rule recognized.
type RawNarrative struct {
	baseEvent
	Text string
}

// NewRawNarrative creates a RawNarrative event.
func NewRawNarrative(raw, text string) RawNarrative {
	return RawNarrative{baseEvent: baseEvent{TypeNarrative, raw}, Text: text}
}
