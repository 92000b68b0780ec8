package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Strategy names, in default order.
const (
	StrategyFenced       = "fenced"
	StrategyWhole        = "whole"
	StrategyBackwardScan = "backward_scan"
	StrategyForwardScan  = "forward_scan"
)

var (
	errNoFence   = errors.New("no fenced code block")
	errEmpty     = errors.New("empty input")
	errNoBrace   = errors.New("no balanced brace span")
	errNotObject = errors.New("top-level JSON value is not an object")
)

// Outcome is what a single strategy produced.
type Outcome struct {
	Payload  map[string]any
	Repaired bool
}

// AttemptFunc tries to recover one JSON object from text.
type AttemptFunc func(text string) (Outcome, error)

// Strategy pairs a name with an attempt. Strategies run in slice order.
type Strategy struct {
	Name    string
	Attempt AttemptFunc
}

// DefaultStrategies returns the standard recovery order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyFenced, Attempt: fencedBlocks},
		{Name: StrategyWhole, Attempt: wholeText},
		{Name: StrategyBackwardScan, Attempt: backwardScan},
		{Name: StrategyForwardScan, Attempt: forwardScan},
	}
}

var markdown = goldmark.New()

// fencedBlocks parses the transcript as markdown and tries each fenced
// code block, the last one first.
func fencedBlocks(transcript string) (Outcome, error) {
	src := []byte(transcript)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fence, ok := n.(*ast.FencedCodeBlock); ok {
			var b strings.Builder
			lines := fence.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			blocks = append(blocks, b.String())
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if len(blocks) == 0 {
		return Outcome{}, errNoFence
	}

	var lastErr error
	for i := len(blocks) - 1; i >= 0; i-- {
		out, err := parseObject(blocks[i])
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return Outcome{}, lastErr
}

func wholeText(transcript string) (Outcome, error) {
	return parseObject(transcript)
}

func backwardScan(transcript string) (Outcome, error) {
	span, ok := lastBalancedSpan(transcript)
	if !ok {
		return Outcome{}, errNoBrace
	}
	return parseObject(span)
}

func forwardScan(transcript string) (Outcome, error) {
	var (
		found   Outcome
		lastErr error = errNoBrace
		ok      bool
	)
	forwardSpans(transcript, func(span string) bool {
		out, err := parseObject(span)
		if err != nil {
			lastErr = err
			return true
		}
		found, ok = out, true
		return false
	})
	if !ok {
		return Outcome{}, lastErr
	}
	return found, nil
}

// parseObject decodes candidate as a JSON object, retrying once with
// soft wraps repaired.
func parseObject(candidate string) (Outcome, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return Outcome{}, errEmpty
	}

	payload, err := decodeObject(candidate)
	if err == nil {
		return Outcome{Payload: payload}, nil
	}
	if errors.Is(err, errNotObject) {
		return Outcome{}, err
	}

	repaired := repairSoftWraps(candidate)
	if repaired != candidate {
		if payload, rerr := decodeObject(repaired); rerr == nil {
			return Outcome{Payload: payload, Repaired: true}, nil
		}
	}
	return Outcome{}, err
}

func decodeObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w (got %T)", errNotObject, v)
	}
	return obj, nil
}
