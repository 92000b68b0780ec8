// Package classify turns raw agent output lines into typed events.
//
// Classification is an ordered list of pattern rules where the first match
// wins. All patterns are case-insensitive. A line no rule recognizes becomes
// [event.RawNarrative]; the classifier never fails. The output format of
// the wrapped agent is unversioned, so every pattern is a heuristic and
// lives here, behind [Classifier.Classify], where it can be tested against
// literal lines.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/shepherd/internal/event"
)

// narrativeRule names the fallback for lines no rule matches.
const narrativeRule = "narrative"

// Pattern groups, in the order their rules are tried.
var (
	// StatusMarkerPatterns match "<glyph> <target>: <narrative>" contract
	// lines. Groups: glyph, target, narrative. These run first so that a
	// status line is never mistaken for a tool completion.
	StatusMarkerPatterns = []string{
		"(?i)^(?:[●⏺•]\\s+)?([✓✔✗✘✖⊘⏸⏳⏱→▶])\\x{FE0F}?\\s*\\*{0,2}`?([a-z0-9][\\w.\\-/]*)`?\\*{0,2}\\s*:\\s*(.*\\S)\\s*$",
	}

	// ThinkingCompletePatterns match the end of a reasoning burst.
	ThinkingCompletePatterns = []string{
		`(?i)^(?:[●⏺•∴✻]\s*)?(?:thought for\s+\d+(?:\.\d+)?\s*(?:ms|s|m)\b|(?:done|finished) (?:thinking|reasoning)\b|(?:thinking|reasoning) (?:complete|completed|done|finished)\b|response received\b)`,
	}

	// ThinkingStartPatterns match the start of a reasoning burst. Group 1,
	// when present, is the message count.
	ThinkingStartPatterns = []string{
		`(?i)^(?:[●⏺•∴✻*]\s*)?(?:thinking|reasoning)\b(?:.*?\b(\d+)\s+messages?\b)?`,
		`(?i)^(?:[●⏺•∴✻]\s*)?\(?(\d+)\s+messages?\)?\s*(?:sent|queued)?\s*$`,
	}

	// ToolCompleteVerbPatterns match "<glyph> <tool> <past tense> [in <duration>] [: summary]".
	// Groups: glyph, tool, verb, duration, summary.
	ToolCompleteVerbPatterns = []string{
		`(?i)^([✓✔✗✘✖])\s+([\w.\-]+)\s+(completed|succeeded|finished|done|failed|errored|timed out)\b(?:\s+(?:in|after))?(?:\s*\(?\s*(\d+(?:\.\d+)?\s*(?:ms|s|m))\s*\)?)?\s*(?:[:\-]\s*(.*))?$`,
	}

	// ToolCompleteDurationPatterns match "<glyph> <tool> [summary] (<duration>)".
	// Groups: glyph, tool, summary, duration.
	ToolCompleteDurationPatterns = []string{
		`(?i)^([✓✔✗✘✖])\s+([\w.\-]+)(?:\s+(.*?))?\s*\((\d+(?:\.\d+)?\s*(?:ms|s|m))\)\s*$`,
	}

	// ShellEchoPatterns match an echoed shell command. Group 1 is the command.
	ShellEchoPatterns = []string{
		`(?i)^\$\s+(\S.*)$`,
	}

	// ToolStartPatterns match a tool announcement. Groups: tool, arguments.
	ToolStartPatterns = []string{
		"(?i)^[●⏺▶→⚙]\\s*(?:running|calling|invoking|using)\\s+(?:tool\\s+)?`?([\\w.\\-]+)`?(?:\\s*[:(]\\s*(.*?)\\)?)?\\s*$",
		`(?i)^[●⏺▶→⚙]\s*([a-z_][\w.\-]*)\s*(?:\((.*)\))?\s*$`,
	}
)

var failureGlyphs = "✗✘✖"

// rule pairs a compiled pattern with the constructor for its event.
type rule struct {
	name  string
	re    *regexp.Regexp
	build func(raw string, m []string) event.Event
}

// Classifier maps lines to events. It holds only compiled patterns and is
// safe for concurrent use.
type Classifier struct {
	rules []rule
}

// New creates a Classifier with the built-in rule order.
func New() *Classifier {
	c := &Classifier{}
	c.add("status_marker", StatusMarkerPatterns, buildServiceStatus)
	c.add("thinking_complete", ThinkingCompletePatterns, func(raw string, _ []string) event.Event {
		return event.NewThinkingComplete(raw)
	})
	c.add("thinking_start", ThinkingStartPatterns, func(raw string, m []string) event.Event {
		return event.NewThinkingStart(raw, atoi(m[1]))
	})
	c.add("tool_complete", ToolCompleteVerbPatterns, buildToolCompleteVerb)
	c.add("tool_complete_timed", ToolCompleteDurationPatterns, buildToolCompleteTimed)
	c.add("shell_echo", ShellEchoPatterns, func(raw string, m []string) event.Event {
		return event.NewToolStart(raw, "shell", strings.TrimSpace(m[1]))
	})
	c.add("tool_start", ToolStartPatterns, func(raw string, m []string) event.Event {
		return event.NewToolStart(raw, m[1], strings.TrimSpace(m[2]))
	})
	return c
}

// add compiles patterns into rules. Invalid patterns are skipped.
func (c *Classifier) add(name string, patterns []string, build func(string, []string) event.Event) {
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			c.rules = append(c.rules, rule{name: name, re: re, build: build})
		}
	}
}

// Classify returns the event for one line, or nil for a blank line.
// ANSI escapes, carriage returns and surrounding whitespace are ignored.
func (c *Classifier) Classify(line string) event.Event {
	ev, _ := c.Match(line)
	return ev
}

// Match classifies line like Classify and also names the rule that
// produced the event; unmatched lines report "narrative".
func (c *Classifier) Match(line string) (event.Event, string) {
	text := Clean(line)
	if text == "" {
		return nil, ""
	}
	for _, r := range c.rules {
		if m := r.re.FindStringSubmatch(text); m != nil {
			if ev := r.build(line, m); ev != nil {
				return ev, r.name
			}
		}
	}
	return event.NewRawNarrative(line, text), narrativeRule
}

// Clean strips ANSI sequences, carriage returns and surrounding whitespace.
func Clean(line string) string {
	line = ansi.Strip(line)
	line = strings.ReplaceAll(line, "\r", "")
	return strings.TrimSpace(line)
}

func buildServiceStatus(raw string, m []string) event.Event {
	target := strings.Trim(m[2], "`*")
	if target == "" {
		return nil
	}
	return event.NewServiceStatus(raw, m[1], target, strings.TrimSpace(m[3]))
}

func buildToolCompleteVerb(raw string, m []string) event.Event {
	status := event.ToolSuccess
	verb := strings.ToLower(m[3])
	if strings.Contains(failureGlyphs, m[1]) || verb == "failed" || verb == "errored" || verb == "timed out" {
		status = event.ToolFailed
	}
	return event.NewToolComplete(raw, m[2], status, strings.TrimSpace(m[5]), parseDuration(m[4]))
}

func buildToolCompleteTimed(raw string, m []string) event.Event {
	status := event.ToolSuccess
	if strings.Contains(failureGlyphs, m[1]) {
		status = event.ToolFailed
	}
	return event.NewToolComplete(raw, m[2], status, strings.TrimSpace(m[3]), parseDuration(m[4]))
}

// parseDuration accepts "1.2s", "340 ms" or "2m"; anything else is zero.
func parseDuration(s string) time.Duration {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
