package transcript

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampFormat is the UTC timestamp embedded in log file names.
const TimestampFormat = "20060102_150405"

// maxNamedTargets is how many targets are spelled out in a file name.
const maxNamedTargets = 3

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitize replaces every run of characters outside [A-Za-z0-9._-] with
// a dash.
func sanitize(s string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(s, "-"), "-")
}

// FileName builds <prefix>_<UTC timestamp>_<targets>.log. At most three
// targets are named; the rest are summarized as -and-N-more.
func FileName(prefix string, targets []string, at time.Time) string {
	parts := []string{sanitize(prefix), at.UTC().Format(TimestampFormat)}

	var named []string
	for _, t := range targets {
		if len(named) == maxNamedTargets {
			break
		}
		if s := sanitize(t); s != "" {
			named = append(named, s)
		}
	}
	if len(named) > 0 {
		suffix := strings.Join(named, "-")
		if extra := len(targets) - maxNamedTargets; extra > 0 {
			suffix += fmt.Sprintf("-and-%d-more", extra)
		}
		parts = append(parts, suffix)
	}
	return strings.Join(parts, "_") + ".log"
}

// Path joins dir and FileName.
func Path(dir, prefix string, targets []string, at time.Time) string {
	return filepath.Join(dir, FileName(prefix, targets, at))
}
