// Package errors defines the error taxonomy for shepherd runs and helpers
// for classifying errors.
//
// # Error Types
//
// Each terminal failure of a run maps onto exactly one type:
//   - SpawnError: the agent executable could not be started (fatal, never retried)
//   - ProcessError: the agent exited non-zero (partial state is still reported)
//   - CancellationError: the run was interrupted or hit its maximum duration
//   - ExtractionError: no JSON document could be recovered from the transcript
//   - SchemaError: a JSON document was recovered but does not match the workflow schema
//
// Input problems are reported as ValidationError, WorkflowError or ConfigError.
//
// Line classification never produces errors: a line that cannot be
// classified becomes narrative text.
//
// # Usage
//
//	err := errors.NewSpawnError("copilot", exec.ErrNotFound)
//	if errors.Is(err, errors.ErrSpawnFailed) { ... }
//
//	var schemaErr *errors.SchemaError
//	if errors.As(err, &schemaErr) {
//	    fmt.Println(schemaErr.Violations)
//	}
//
//	reason := errors.ReasonCode(err) // "spawn_failed"
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Run outcome sentinel errors
var (
	// ErrSpawnFailed indicates the agent process could not be started.
	ErrSpawnFailed = New("agent failed to start")
	// ErrProcessFailed indicates the agent exited with a non-zero code.
	ErrProcessFailed = New("agent exited with failure")
	// ErrCancelled indicates the run was cancelled by the user.
	ErrCancelled = New("run cancelled")
	// ErrTimeout indicates the run exceeded its maximum duration.
	ErrTimeout = New("run timed out")
	// ErrExtractionFailed indicates no JSON payload could be recovered.
	ErrExtractionFailed = New("no JSON payload recovered")
	// ErrSchemaInvalid indicates the recovered payload violates the workflow schema.
	ErrSchemaInvalid = New("payload does not match schema")
)

// Input sentinel errors
var (
	// ErrUnknownWorkflow indicates the requested workflow is not in the catalog.
	ErrUnknownWorkflow = New("unknown workflow")
	// ErrNoTargets indicates a run was requested without targets.
	ErrNoTargets = New("no targets declared")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// Reason codes recorded in reports and metrics.
const (
	ReasonCompleted        = "completed"
	ReasonSpawnFailed      = "spawn_failed"
	ReasonProcessFailed    = "process_failed"
	ReasonCancelled        = "cancelled"
	ReasonTimeout          = "timeout"
	ReasonExtractionFailed = "extraction_failed"
	ReasonSchemaInvalid    = "schema_invalid"
)

// ShepherdError is implemented by every error type in this package.
type ShepherdError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

// Severity returns the error severity.
func (e *baseError) Severity() Severity { return e.severity }

// IsRetryable always reports false: shepherd never retries a run on its own.
func (e *baseError) IsRetryable() bool { return false }

// IsUserFacing reports whether the message is safe to show users.
func (e *baseError) IsUserFacing() bool { return e.userFacing }

func format(kind string, ctx []string, message string, cause error) string {
	prefix := kind
	if len(ctx) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(ctx, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// SpawnError reports that the agent executable could not be started.
//
//	err := errors.NewSpawnError("copilot", exec.ErrNotFound)
//	fmt.Println(err) // "spawn error [command=copilot]: agent failed to start: executable file not found in $PATH"
type SpawnError struct {
	baseError
	Command string
}

// NewSpawnError creates a SpawnError for command.
func NewSpawnError(command string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{message: ErrSpawnFailed.Error(), cause: cause, severity: SeverityCritical, userFacing: true},
		Command:   command,
	}
}

func (e *SpawnError) Error() string {
	var ctx []string
	if e.Command != "" {
		ctx = append(ctx, "command="+e.Command)
	}
	return format("spawn error", ctx, e.message, e.cause)
}

func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawnFailed
}

// ProcessError reports a non-zero agent exit.
type ProcessError struct {
	baseError
	ExitCode int
}

// NewProcessError creates a ProcessError for the given exit code.
func NewProcessError(exitCode int, cause error) *ProcessError {
	return &ProcessError{
		baseError: baseError{message: ErrProcessFailed.Error(), cause: cause, severity: SeverityError, userFacing: true},
		ExitCode:  exitCode,
	}
}

func (e *ProcessError) Error() string {
	return format("process error", []string{fmt.Sprintf("exit=%d", e.ExitCode)}, e.message, e.cause)
}

func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessFailed
}

// CancellationError reports a run that ended because it was interrupted
// (Reason "cancelled") or because it ran past its limit (Reason "timeout").
type CancellationError struct {
	baseError
	Reason string
	After  time.Duration
}

// NewCancellationError creates a CancellationError. timedOut selects the
// timeout reason code.
func NewCancellationError(timedOut bool, after time.Duration) *CancellationError {
	e := &CancellationError{
		baseError: baseError{message: ErrCancelled.Error(), severity: SeverityWarning, userFacing: true},
		Reason:    ReasonCancelled,
		After:     after,
	}
	if timedOut {
		e.message = ErrTimeout.Error()
		e.Reason = ReasonTimeout
	}
	return e
}

func (e *CancellationError) Error() string {
	return format("run "+e.Reason, []string{"after=" + e.After.Round(time.Millisecond).String()}, e.message, e.cause)
}

func (e *CancellationError) Is(target error) bool {
	switch target {
	case ErrCancelled:
		return e.Reason == ReasonCancelled
	case ErrTimeout:
		return e.Reason == ReasonTimeout
	}
	return false
}

// ExtractionError reports that no strategy recovered a JSON document.
// The cause is the last parse error observed.
type ExtractionError struct {
	baseError
	Attempted []string
}

// NewExtractionError creates an ExtractionError.
func NewExtractionError(attempted []string, lastErr error) *ExtractionError {
	return &ExtractionError{
		baseError: baseError{message: ErrExtractionFailed.Error(), cause: lastErr, severity: SeverityError, userFacing: true},
		Attempted: attempted,
	}
}

func (e *ExtractionError) Error() string {
	return format("extraction error", []string{"tried=" + strings.Join(e.Attempted, ",")}, e.message, e.cause)
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// SchemaError reports a syntactically valid payload with the wrong structure.
type SchemaError struct {
	baseError
	Violations []string
	Payload    map[string]any
}

// NewSchemaError creates a SchemaError carrying the offending payload.
func NewSchemaError(violations []string, payload map[string]any) *SchemaError {
	return &SchemaError{
		baseError:  baseError{message: ErrSchemaInvalid.Error(), severity: SeverityError, userFacing: true},
		Violations: violations,
		Payload:    payload,
	}
}

func (e *SchemaError) Error() string {
	msg := e.message
	if len(e.Violations) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Violations, "; "))
	}
	return format("schema error", nil, msg, nil)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaInvalid
}

// WorkflowError reports a problem with a workflow definition or lookup.
type WorkflowError struct {
	baseError
	Workflow string
}

// NewWorkflowError creates a WorkflowError.
func NewWorkflowError(workflow, message string, cause error) *WorkflowError {
	return &WorkflowError{
		baseError: baseError{message: message, cause: cause, severity: SeverityError, userFacing: true},
		Workflow:  workflow,
	}
}

func (e *WorkflowError) Error() string {
	var ctx []string
	if e.Workflow != "" {
		ctx = append(ctx, "workflow="+e.Workflow)
	}
	return format("workflow error", ctx, e.message, e.cause)
}

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	baseError
	Key string
}

// NewConfigError creates a ConfigError.
func NewConfigError(key, message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{message: message, cause: cause, severity: SeverityError, userFacing: true},
		Key:       key,
	}
}

func (e *ConfigError) Error() string {
	var ctx []string
	if e.Key != "" {
		ctx = append(ctx, "key="+e.Key)
	}
	return format("config error", ctx, e.message, e.cause)
}

// ValidationError represents invalid input.
//
//	err := errors.NewValidationError("target pattern matched nothing").WithField("targets").WithValue("idx*")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{message: message, severity: SeverityWarning, userFacing: true},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var ctx []string
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if e.Value != nil {
		ctx = append(ctx, fmt.Sprintf("value=%v", e.Value))
	}
	return format("validation error", ctx, e.message, e.cause)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsRetryable reports whether err may succeed on retry. Run outcomes are
// never retried automatically, so only foreign errors that say so count.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se ShepherdError
	if As(err, &se) {
		return se.IsRetryable()
	}
	var r interface{ IsRetryable() bool }
	return As(err, &r) && r.IsRetryable()
}

// IsUserFacing reports whether the error message is safe to show users.
func IsUserFacing(err error) bool {
	var se ShepherdError
	return err != nil && As(err, &se) && se.IsUserFacing()
}

// GetSeverity returns the severity of err, SeverityError for foreign errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var se ShepherdError
	if As(err, &se) {
		return se.Severity()
	}
	return SeverityError
}

// ReasonCode maps an error onto the reason code recorded for a run.
// A nil error maps to ReasonCompleted; unknown errors to ReasonProcessFailed.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ReasonCompleted
	case Is(err, ErrSpawnFailed):
		return ReasonSpawnFailed
	case Is(err, ErrTimeout):
		return ReasonTimeout
	case Is(err, ErrCancelled):
		return ReasonCancelled
	case Is(err, ErrSchemaInvalid):
		return ReasonSchemaInvalid
	case Is(err, ErrExtractionFailed):
		return ReasonExtractionFailed
	default:
		return ReasonProcessFailed
	}
}

// Wrap wraps an error with a context message, preserving the chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
