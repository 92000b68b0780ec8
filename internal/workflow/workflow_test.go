package workflow

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/extract"
)

func TestBuiltin(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	if got := c.Names(); !reflect.DeepEqual(got, []string{"fork", "status", "test"}) {
		t.Errorf("Names() = %v", got)
	}

	status, err := c.Get("status")
	if err != nil {
		t.Fatal(err)
	}
	if !status.ExpectsPayload || status.Schema == nil {
		t.Error("status workflow should expect a schema-checked payload")
	}
	if !reflect.DeepEqual(status.PayloadKeys, []string{"services", "projects"}) {
		t.Errorf("PayloadKeys = %v", status.PayloadKeys)
	}

	fork, _ := c.Get("fork")
	if fork.ExpectsPayload || fork.LogPrefix != "fork" {
		t.Errorf("fork = %+v", fork)
	}
}

func TestBuiltin_StatusSchema(t *testing.T) {
	c, _ := Builtin()
	status, _ := c.Get("status")
	schema, err := status.CompileSchema()
	if err != nil {
		t.Fatalf("CompileSchema() error = %v", err)
	}

	e := extract.New(extract.WithSchema(schema))
	if res := e.Extract(`{"services": {"partition": {"status": "ok"}}}`); !res.OK() {
		t.Errorf("services payload rejected: %+v", res.Failure)
	}
	if res := e.Extract(`{"projects": {"partition": {}}}`); !res.OK() {
		t.Errorf("projects payload rejected: %+v", res.Failure)
	}
	res := e.Extract(`{"timestamp": "2025-01-01T00:00:00Z"}`)
	if res.OK() || res.Failure.Kind != extract.KindSchemaInvalid {
		t.Errorf("payload without services accepted: %+v", res.Failure)
	}
}

func TestGet_Unknown(t *testing.T) {
	c, _ := Builtin()
	_, err := c.Get("deploy")
	if !errors.Is(err, errors.ErrUnknownWorkflow) {
		t.Errorf("Get() error = %v, want ErrUnknownWorkflow", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	def := &Definition{
		Name:   "test",
		Prompt: "Test the {{ORGANIZATION}} forks.\n",
		Arguments: []Argument{
			{Name: "provider", Default: "core", Allowed: []string{"core", "azure"}},
			{Name: "branch", Label: "BRANCH", Default: "main"},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatal(err)
	}

	got, err := def.BuildPrompt("acme", []string{"partition", "legal"}, map[string]string{"provider": "azure"})
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	want := "Test the acme forks.\n\nARGUMENTS:\nSERVICES: partition,legal\nPROVIDER: azure\nBRANCH: main"
	if got != want {
		t.Errorf("BuildPrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestResolveArgs_Errors(t *testing.T) {
	c, _ := Builtin()
	test, _ := c.Get("test")

	tests := []struct {
		name string
		args map[string]string
	}{
		{"unknown argument", map[string]string{"branch": "dev"}},
		{"disallowed value", map[string]string{"provider": "mars"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := test.ResolveArgs(tt.args)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("ResolveArgs() error = %v, want ErrInvalidInput", err)
			}
		})
	}

	got, err := test.ResolveArgs(nil)
	if err != nil || got["provider"] != "core" {
		t.Errorf("ResolveArgs(nil) = %v, %v", got, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{"missing name", Definition{Prompt: "x"}, "name is required"},
		{"missing prompt", Definition{Name: "x"}, "prompt is required"},
		{"unknown token", Definition{Name: "x", Prompt: "{{SECRET}}"}, "unknown prompt token"},
		{"duplicate argument", Definition{Name: "x", Prompt: "p", Arguments: []Argument{{Name: "a"}, {Name: "a"}}}, "duplicate argument"},
		{"bad default", Definition{Name: "x", Prompt: "p", Arguments: []Argument{{Name: "a", Default: "z", Allowed: []string{"y"}}}}, "not allowed"},
		{"bad schema", Definition{Name: "x", Prompt: "p", Schema: map[string]any{"type": 5}}, "invalid payload schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	def := Definition{Name: "sync", Prompt: "p", Arguments: []Argument{{Name: "dry-run", Default: "false"}}, ExpectsPayload: true}
	if err := def.Validate(); err != nil {
		t.Fatal(err)
	}
	if def.LogPrefix != "sync" || def.Arguments[0].Label != "DRY_RUN" {
		t.Errorf("defaults not applied: %+v", def)
	}
	if !reflect.DeepEqual(def.PayloadKeys, []string{"services", "targets"}) {
		t.Errorf("PayloadKeys = %v", def.PayloadKeys)
	}
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	content := `workflows:
  - name: fork
    description: custom fork
    prompt: "Fork for {{ORGANIZATION}}"
  - name: audit
    log_prefix: sec-audit
    prompt: "Audit {{ORGANIZATION}}"
    expects_payload: true
    schema:
      type: object
      required: [targets]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := c.Names(); !reflect.DeepEqual(got, []string{"fork", "status", "test", "audit"}) {
		t.Errorf("Names() = %v", got)
	}
	fork, _ := c.Get("fork")
	if fork.Description != "custom fork" || fork.Source != path {
		t.Errorf("fork not overridden: %+v", fork)
	}
	audit, _ := c.Get("audit")
	if audit.LogPrefix != "sec-audit" || len(c.All()) != 4 {
		t.Errorf("audit = %+v", audit)
	}
}

func TestLoad_MissingFileUsesBuiltin(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(c.Names()) != 3 {
		t.Errorf("Names() = %v", c.Names())
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	_ = os.WriteFile(path, []byte("workflows: [{name: x}]"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted a workflow without a prompt")
	}
}

func TestGathered(t *testing.T) {
	def := &Definition{Name: "status", Prompt: "p", ExpectsPayload: true, PayloadKeys: []string{"services", "projects"}}

	payload := map[string]any{
		"projects": map[string]any{
			"partition": map[string]any{"status": "success", "summary": "2 open MRs", "merge_requests": []any{}},
			"legal":     map[string]any{"status": 1},
		},
	}
	got, err := def.Gathered(payload)
	if err != nil {
		t.Fatalf("Gathered() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Gathered() = %v", got)
	}
	if got["partition"].Summary != "2 open MRs" || got["partition"].Extra["merge_requests"] == nil {
		t.Errorf("partition = %+v", got["partition"])
	}
	if got["legal"].Status != "1" {
		t.Errorf("legal.Status = %q, want weakly typed \"1\"", got["legal"].Status)
	}

	empty, err := def.Gathered(map[string]any{"other": 1})
	if err != nil || len(empty) != 0 {
		t.Errorf("Gathered() without keys = %v, %v", empty, err)
	}

	if _, err := def.Gathered(map[string]any{"services": "nope"}); err == nil {
		t.Error("Gathered() accepted a non-object section")
	}
}
