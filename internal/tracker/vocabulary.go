package tracker

import (
	"regexp"
	"strconv"
	"strings"
)

// Narrative vocabulary. Error and skip words win wherever they appear,
// except on a success glyph where an earlier success word outranks a
// later error word. Between success and progress words, whichever
// appears first wins, so "Waiting for workflow to complete" stays Running
// while "Compiled successfully, 61 tests passed" is a Success.
var (
	ErrorWords    = `\b(?:error|errors|errored|failed|failure|failing|fatal|denied|aborted)\b`
	SkipWords     = `\b(?:skip|skipped|skipping|already exists|not applicable|n/a)\b`
	SuccessWords  = `\b(?:success|successful|successfully|succeeded|completed?|done|passed|finished|gathered|created|forked|merged|ok)\b`
	ProgressWords = `\b(?:start|starting|started|creating|waiting|running|compiling|building|testing|querying|gathering|fetching|cloning|syncing|checking|forking|pending|in progress|coverage)\b`

	// zeroCounts removes "0 failed", "0 errors" style tallies before the
	// error vocabulary is consulted.
	zeroCounts = regexp.MustCompile(`(?i)\b0\s+(?:failed|failures|errors?|failing)\b|\b(?:failures|errors|failed):\s*0\b`)

	// negatedErrors removes "no errors", "without failures" and "fixed 2
	// compile errors" style phrases, which report the absence of a problem.
	negatedErrors = regexp.MustCompile(`(?i)\b(?:no|zero|without)\s+(?:[\w-]+\s+)?(?:errors?|failures?|failed)\b|\b(?:fixed|resolved|cleared)\s+(?:\d+\s+)?(?:[\w-]+\s+)?(?:errors?|failures?)\b|\berror[- ]free\b`)

	passedCount = regexp.MustCompile(`(?i)\b(\d+)\s+tests?\s+(?:passed|passing|succeeded)\b`)
	failedCount = regexp.MustCompile(`(?i)\b(\d+)\s+(?:tests?\s+)?(?:failed|failing|failures)\b`)
	runCount    = regexp.MustCompile(`(?i)\btests?\s+run:\s*(\d+)`)
)

var (
	errorRe    = regexp.MustCompile(`(?i)` + ErrorWords)
	skipRe     = regexp.MustCompile(`(?i)` + SkipWords)
	successRe  = regexp.MustCompile(`(?i)` + SuccessWords)
	progressRe = regexp.MustCompile(`(?i)` + ProgressWords)
)

// Interpret maps a status glyph and narrative onto the state they announce.
// Unrecognized narrative announces Running: a status line is evidence the
// target is being worked on.
func Interpret(glyph, narrative string) State {
	switch glyph {
	case "✗", "✘", "✖":
		return Error
	case "⊘":
		return Skipped
	}

	text := zeroCounts.ReplaceAllString(narrative, "")
	text = negatedErrors.ReplaceAllString(text, "")
	if e := errorRe.FindStringIndex(text); e != nil {
		if !successGlyph(glyph) {
			return Error
		}
		// A nonzero failure tally is an error whatever came before it.
		if s := successRe.FindStringIndex(text); s == nil || e[0] < s[0] || failedTally(text) > 0 {
			return Error
		}
	}
	if skipRe.MatchString(text) {
		return Skipped
	}

	s := successRe.FindStringIndex(text)
	p := progressRe.FindStringIndex(text)
	switch {
	case s != nil && (p == nil || s[0] < p[0]):
		return Success
	default:
		return Running
	}
}

func successGlyph(glyph string) bool {
	return glyph == "✓" || glyph == "✔"
}

// failedTally returns the failure count reported in text, or 0.
func failedTally(text string) int {
	m := failedCount.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// TestCounts are test tallies reported in narrative.
type TestCounts struct {
	Run    int `json:"run,omitempty"`
	Passed int `json:"passed,omitempty"`
	Failed int `json:"failed,omitempty"`
}

// IsZero reports whether no tallies were seen.
func (c TestCounts) IsZero() bool { return c == TestCounts{} }

// merge overlays tallies found in narrative onto c.
func (c TestCounts) merge(narrative string) TestCounts {
	if m := passedCount.FindStringSubmatch(narrative); m != nil {
		c.Passed, _ = strconv.Atoi(m[1])
	}
	if m := failedCount.FindStringSubmatch(narrative); m != nil {
		c.Failed, _ = strconv.Atoi(m[1])
	}
	if m := runCount.FindStringSubmatch(narrative); m != nil {
		c.Run, _ = strconv.Atoi(m[1])
	}
	if c.Run < c.Passed+c.Failed {
		c.Run = c.Passed + c.Failed
	}
	return c
}

// Normalize canonicalizes a target name for lookup: case-folded, trimmed
// of markdown emphasis, with underscores treated as dashes.
func Normalize(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "`*_\"'")
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, "_", "-")
}
