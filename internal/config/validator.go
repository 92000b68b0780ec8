package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// Display verbosity levels
const (
	VerbosityMinimal = "minimal"
	VerbosityVerbose = "verbose"
	VerbosityQuiet   = "quiet"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "run.timeout_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidVerbosities returns the accepted display verbosity values
func ValidVerbosities() []string {
	return []string{VerbosityMinimal, VerbosityVerbose, VerbosityQuiet}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateRun()...)
	errs = append(errs, c.validateDisplay()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateTargets()...)
	return errs
}

func (c *Config) validateAgent() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Agent.Command) == "" {
		errs = append(errs, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "must not be empty",
		})
	}
	return errs
}

func (c *Config) validateRun() []ValidationError {
	var errs []ValidationError

	if c.Run.TimeoutMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "run.timeout_minutes",
			Value:   c.Run.TimeoutMinutes,
			Message: "must be non-negative (0 disables the limit)",
		})
	}

	const maxGrace = 300
	if c.Run.GracePeriodSeconds < 0 || c.Run.GracePeriodSeconds > maxGrace {
		errs = append(errs, ValidationError{
			Field:   "run.grace_period_seconds",
			Value:   c.Run.GracePeriodSeconds,
			Message: fmt.Sprintf("must be between 0 and %d", maxGrace),
		})
	}

	if c.Run.SilenceWarningSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "run.silence_warning_seconds",
			Value:   c.Run.SilenceWarningSeconds,
			Message: "must be non-negative (0 disables warnings)",
		})
	}

	if c.Run.MaxLateMarkers < 0 {
		errs = append(errs, ValidationError{
			Field:   "run.max_late_markers",
			Value:   c.Run.MaxLateMarkers,
			Message: "must be non-negative",
		})
	}
	return errs
}

func (c *Config) validateDisplay() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidVerbosities(), strings.ToLower(c.Display.Verbosity)) {
		errs = append(errs, ValidationError{
			Field:   "display.verbosity",
			Value:   c.Display.Verbosity,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidVerbosities(), ", ")),
		})
	}

	const minRefresh, maxRefresh = 50, 5000
	if c.Display.RefreshIntervalMs < minRefresh || c.Display.RefreshIntervalMs > maxRefresh {
		errs = append(errs, ValidationError{
			Field:   "display.refresh_interval_ms",
			Value:   c.Display.RefreshIntervalMs,
			Message: fmt.Sprintf("must be between %dms and %dms", minRefresh, maxRefresh),
		})
	}

	const maxNarrative = 200
	if c.Display.NarrativeLines < 0 || c.Display.NarrativeLines > maxNarrative {
		errs = append(errs, ValidationError{
			Field:   "display.narrative_lines",
			Value:   c.Display.NarrativeLines,
			Message: fmt.Sprintf("must be between 0 and %d", maxNarrative),
		})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}
	return errs
}

// validateTargets rejects catalog entries that are themselves patterns
func (c *Config) validateTargets() []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(c.Targets))
	for _, name := range c.Targets {
		switch {
		case strings.TrimSpace(name) == "":
			errs = append(errs, ValidationError{Field: "targets", Value: name, Message: "must not contain empty names"})
		case IsPattern(name):
			errs = append(errs, ValidationError{Field: "targets", Value: name, Message: "must list concrete names, not patterns"})
		case seen[name]:
			errs = append(errs, ValidationError{Field: "targets", Value: name, Message: "duplicate target"})
		}
		seen[name] = true
	}
	return errs
}

// IsPattern reports whether a target argument is a glob pattern
func IsPattern(arg string) bool {
	return strings.ContainsAny(arg, "*?[{")
}

// ExpandTargets resolves target arguments against the configured catalog.
// Plain names pass through unchanged; patterns are replaced by every catalog
// entry they match, in catalog order. Duplicates are dropped.
func (c *Config) ExpandTargets(args []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, arg := range args {
		if !IsPattern(arg) {
			add(arg)
			continue
		}
		g, err := glob.Compile(arg)
		if err != nil {
			return nil, ValidationError{Field: "targets", Value: arg, Message: fmt.Sprintf("invalid pattern: %v", err)}
		}
		matched := false
		for _, name := range c.Targets {
			if g.Match(name) {
				add(name)
				matched = true
			}
		}
		if !matched {
			return nil, ValidationError{Field: "targets", Value: arg, Message: "pattern matched no configured targets"}
		}
	}
	return out, nil
}
