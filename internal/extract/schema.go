package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer formats schema violation messages.
var printer = message.NewPrinter(language.English)

// Schema is a compiled JSON schema for a workflow payload.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles doc, which may come from YAML or JSON decoding.
// The document is normalized through JSON so YAML integers and maps are
// accepted.
func CompileSchema(name string, doc any) (*Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema %s: %w", name, err)
	}
	return CompileSchemaJSON(name, raw)
}

// CompileSchemaJSON compiles a schema from raw JSON bytes.
func CompileSchemaJSON(name string, raw []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	resource := name + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// Name returns the name the schema was compiled under.
func (s *Schema) Name() string { return s.name }

// Validate returns one message per violated constraint, or nil when the
// payload conforms.
func (s *Schema) Validate(payload map[string]any) []string {
	// Numbers must reach the validator as json.Number.
	raw, err := json.Marshal(payload)
	if err != nil {
		return []string{fmt.Sprintf("/: %v", err)}
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []string{fmt.Sprintf("/: %v", err)}
	}

	err = s.compiled.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var violations []string
	collectViolations(ve, &violations)
	return violations
}

func collectViolations(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collectViolations(c, out)
	}
}
