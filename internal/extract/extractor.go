package extract

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/shepherd/internal/errors"
)

// Failure kinds.
const (
	KindExtractionFailed = "extraction_failed"
	KindSchemaInvalid    = "schema_invalid"
)

// Attempt records one strategy's outcome. Err is empty on success.
type Attempt struct {
	Strategy string `json:"strategy"`
	Err      string `json:"error,omitempty"`
}

// Failure is the record written when no valid payload was produced.
type Failure struct {
	Kind       string         `json:"kind"`
	Attempted  []string       `json:"attempted_strategies"`
	LastError  string         `json:"last_error,omitempty"`
	Violations []string       `json:"violations,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Result is the outcome of one extraction.
type Result struct {
	Payload  map[string]any
	Strategy string
	Repaired bool
	Attempts []Attempt
	Failure  *Failure

	lastErr error
}

// OK reports whether a schema-valid payload was recovered.
func (r *Result) OK() bool { return r.Failure == nil }

// Attempted returns the strategy names that ran, in order.
func (r *Result) Attempted() []string {
	names := make([]string, len(r.Attempts))
	for i, a := range r.Attempts {
		names[i] = a.Strategy
	}
	return names
}

// Err converts a failed result into the matching error type.
func (r *Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	if r.Failure.Kind == KindSchemaInvalid {
		return errors.NewSchemaError(r.Failure.Violations, r.Failure.Payload)
	}
	return errors.NewExtractionError(r.Failure.Attempted, r.lastErr)
}

// Extractor runs strategies over a transcript and validates the winner.
type Extractor struct {
	strategies []Strategy
	schema     *Schema
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the default strategy order.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// WithSchema validates recovered payloads against s.
func WithSchema(s *Schema) Option {
	return func(e *Extractor) {
		e.schema = s
	}
}

// New creates an Extractor with the default strategies.
func New(opts ...Option) *Extractor {
	e := &Extractor{strategies: DefaultStrategies()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns the names of the configured strategies in order.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract recovers a payload from transcript. It never returns nil.
func (e *Extractor) Extract(transcript string) *Result {
	// Agents on a pseudo-terminal colour their JSON and end lines with \r\n.
	transcript = strings.ReplaceAll(ansi.Strip(transcript), "\r", "")

	res := &Result{}
	for _, s := range e.strategies {
		out, err := s.Attempt(transcript)
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name, Err: err.Error()})
			res.lastErr = err
			continue
		}
		res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name})
		res.Payload = out.Payload
		res.Strategy = s.Name
		res.Repaired = out.Repaired
		break
	}

	if res.Payload == nil {
		res.Failure = &Failure{Kind: KindExtractionFailed, Attempted: res.Attempted()}
		if res.lastErr != nil {
			res.Failure.LastError = res.lastErr.Error()
		}
		return res
	}

	if e.schema != nil {
		if violations := e.schema.Validate(res.Payload); len(violations) > 0 {
			res.Failure = &Failure{
				Kind:       KindSchemaInvalid,
				Attempted:  res.Attempted(),
				Violations: violations,
				Payload:    res.Payload,
			}
		}
	}
	return res
}
