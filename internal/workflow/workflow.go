// Package workflow defines the catalog of scripted agent workflows.
//
// A workflow is a prompt template plus the arguments it accepts, the log
// file prefix it uses and, for data-gathering workflows, the JSON schema
// its final payload must satisfy. The fork, status and test workflows are
// embedded; a YAML file can add workflows or replace built-in ones.
package workflow

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/extract"
)

// OrganizationToken is replaced with the configured organization.
const OrganizationToken = "{{ORGANIZATION}}"

// tokenPattern matches {{TOKEN}} placeholders in prompt templates.
var tokenPattern = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// defaultPayloadKeys name the payload objects that hold per-target data.
var defaultPayloadKeys = []string{"services", "targets"}

// Argument is a named workflow parameter, rendered as "LABEL: value" in the
// prompt's ARGUMENTS block.
type Argument struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	Default     string   `yaml:"default"`
	Description string   `yaml:"description"`
	Allowed     []string `yaml:"allowed"`
}

// Definition describes one workflow.
type Definition struct {
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	LogPrefix      string         `yaml:"log_prefix"`
	Prompt         string         `yaml:"prompt"`
	Arguments      []Argument     `yaml:"arguments"`
	ExpectsPayload bool           `yaml:"expects_payload"`
	PayloadKeys    []string       `yaml:"payload_keys"`
	Schema         map[string]any `yaml:"schema"`

	// Source is where the definition was loaded from.
	Source string `yaml:"-"`
}

// Validate checks the definition and fills defaults.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.NewWorkflowError("", "workflow name is required", nil)
	}
	if strings.TrimSpace(d.Prompt) == "" {
		return errors.NewWorkflowError(d.Name, "prompt is required", nil)
	}
	if d.LogPrefix == "" {
		d.LogPrefix = d.Name
	}
	if d.ExpectsPayload && len(d.PayloadKeys) == 0 {
		d.PayloadKeys = defaultPayloadKeys
	}

	for _, m := range tokenPattern.FindAllString(d.Prompt, -1) {
		if m != OrganizationToken {
			return errors.NewWorkflowError(d.Name, fmt.Sprintf("unknown prompt token %s (only %s is supported)", m, OrganizationToken), nil)
		}
	}

	seen := make(map[string]bool, len(d.Arguments))
	for i := range d.Arguments {
		arg := &d.Arguments[i]
		if arg.Name == "" {
			return errors.NewWorkflowError(d.Name, fmt.Sprintf("argument %d has no name", i+1), nil)
		}
		if seen[arg.Name] {
			return errors.NewWorkflowError(d.Name, fmt.Sprintf("duplicate argument %q", arg.Name), nil)
		}
		seen[arg.Name] = true
		if arg.Label == "" {
			arg.Label = strings.ToUpper(strings.ReplaceAll(arg.Name, "-", "_"))
		}
		if arg.Default != "" && len(arg.Allowed) > 0 && !slices.Contains(arg.Allowed, arg.Default) {
			return errors.NewWorkflowError(d.Name, fmt.Sprintf("argument %q default %q is not allowed", arg.Name, arg.Default), nil)
		}
	}

	if d.Schema != nil {
		if _, err := d.CompileSchema(); err != nil {
			return errors.NewWorkflowError(d.Name, "invalid payload schema", err)
		}
	}
	return nil
}

// CompileSchema compiles the payload schema, or returns nil when the
// workflow declares none.
func (d *Definition) CompileSchema() (*extract.Schema, error) {
	if d.Schema == nil {
		return nil, nil
	}
	return extract.CompileSchema(d.Name, d.Schema)
}

// Argument returns the argument called name.
func (d *Definition) Argument(name string) (Argument, bool) {
	for _, a := range d.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return Argument{}, false
}

// ResolveArgs applies defaults to given and rejects unknown names and
// values outside an argument's allowed set. The result has one entry per
// declared argument.
func (d *Definition) ResolveArgs(given map[string]string) (map[string]string, error) {
	for name := range given {
		if _, ok := d.Argument(name); !ok {
			return nil, errors.NewValidationError(fmt.Sprintf("workflow %s has no argument %q", d.Name, name)).WithField(name)
		}
	}

	resolved := make(map[string]string, len(d.Arguments))
	for _, a := range d.Arguments {
		v, ok := given[a.Name]
		if !ok || v == "" {
			v = a.Default
		}
		if v == "" {
			return nil, errors.NewValidationError(fmt.Sprintf("argument %q is required", a.Name)).WithField(a.Name)
		}
		if len(a.Allowed) > 0 && !slices.Contains(a.Allowed, v) {
			return nil, errors.NewValidationError(fmt.Sprintf("argument %q must be one of %s", a.Name, strings.Join(a.Allowed, ", "))).
				WithField(a.Name).WithValue(v)
		}
		resolved[a.Name] = v
	}
	return resolved, nil
}

// BuildPrompt substitutes the organization and appends the ARGUMENTS
// block: SERVICES first, then each argument in declaration order.
func (d *Definition) BuildPrompt(organization string, targets []string, args map[string]string) (string, error) {
	resolved, err := d.ResolveArgs(args)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(strings.ReplaceAll(d.Prompt, OrganizationToken, organization), "\n"))
	b.WriteString("\n\nARGUMENTS:\n")
	b.WriteString("SERVICES: ")
	b.WriteString(strings.Join(targets, ","))
	for _, a := range d.Arguments {
		b.WriteString("\n")
		b.WriteString(a.Label)
		b.WriteString(": ")
		b.WriteString(resolved[a.Name])
	}
	return b.String(), nil
}
