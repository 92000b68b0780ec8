package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/history"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/report"
	"github.com/Iron-Ham/shepherd/internal/testutil"
	"github.com/Iron-Ham/shepherd/internal/workflow"
)

func findCommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered under %q", name, parent.Name())
	return nil
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "shepherd" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "shepherd")
	}

	for _, name := range []string{"fork", "status", "test", "run", "workflows", "history", "logs", "tail", "config"} {
		findCommand(t, rootCmd, name)
	}
	for _, name := range []string{"list", "show"} {
		findCommand(t, findCommand(t, rootCmd, "history"), name)
	}
	for _, name := range []string{"show", "set", "init", "path"} {
		findCommand(t, findCommand(t, rootCmd, "config"), name)
	}
}

func TestWorkflowCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
		want    string
	}{
		{"fork", "branch", "main"},
		{"status", "provider", "github"},
		{"test", "provider", "core"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			c := findCommand(t, rootCmd, tt.command)
			f := c.Flags().Lookup(tt.flag)
			if f == nil {
				t.Fatalf("%s has no --%s flag", tt.command, tt.flag)
			}
			if f.DefValue != tt.want {
				t.Errorf("--%s default = %q, want %q", tt.flag, f.DefValue, tt.want)
			}
			if c.Flags().Lookup("json") == nil {
				t.Errorf("%s has no --json flag", tt.command)
			}
		})
	}
}

func TestParseArgFlags(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", pairs: nil, want: map[string]string{}},
		{name: "single", pairs: []string{"provider=gitlab"}, want: map[string]string{"provider": "gitlab"}},
		{name: "trimmed", pairs: []string{" branch = dev "}, want: map[string]string{"branch": "dev"}},
		{name: "empty value", pairs: []string{"branch="}, want: map[string]string{"branch": ""}},
		{name: "value with equals", pairs: []string{"query=a=b"}, want: map[string]string{"query": "a=b"}},
		{name: "last wins", pairs: []string{"p=a", "p=b"}, want: map[string]string{"p": "b"}},
		{name: "missing equals", pairs: []string{"provider"}, wantErr: true},
		{name: "missing name", pairs: []string{"=gitlab"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgFlags(tt.pairs)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidInput) {
					t.Fatalf("parseArgFlags() error = %v, want invalid input", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgFlags() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseArgFlags() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseArgFlags()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestParseSettingValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{"organization", "acme", "acme", false},
		{"run.timeout_minutes", "20", 20, false},
		{"run.timeout_minutes", "-1", nil, true},
		{"run.timeout_minutes", "soon", nil, true},
		{"agent.use_pty", "true", true, false},
		{"agent.use_pty", "maybe", nil, true},
		{"display.verbosity", "verbose", "verbose", false},
		{"display.verbosity", "loud", nil, true},
		{"logging.level", "warn", "warn", false},
		{"logging.level", "trace", nil, true},
		{"session.max_instances", "5", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseSettingValue(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSettingValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseSettingValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestBuildLogFilter(t *testing.T) {
	defer func() { logsLevel, logsSince, logsGrep, logsTarget = "", "", "", "" }()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	logsLevel, logsSince, logsGrep, logsTarget = "warn", "1h", "timeout", "billing"
	filter, err := buildLogFilter(now)
	if err != nil {
		t.Fatalf("buildLogFilter() error = %v", err)
	}
	if filter.Level != logging.LevelWarn {
		t.Errorf("Level = %q, want %q", filter.Level, logging.LevelWarn)
	}
	if !filter.StartTime.Equal(now.Add(-time.Hour)) {
		t.Errorf("StartTime = %v, want %v", filter.StartTime, now.Add(-time.Hour))
	}
	if filter.MessageContains != "timeout" || filter.Target != "billing" {
		t.Errorf("filter = %+v", filter)
	}

	logsLevel, logsSince = "loud", ""
	if _, err := buildLogFilter(now); err == nil {
		t.Error("buildLogFilter() accepted an unknown level")
	}

	logsLevel, logsSince = "", "yesterday"
	if _, err := buildLogFilter(now); err == nil {
		t.Error("buildLogFilter() accepted an invalid duration")
	}
}

func TestTailEntries(t *testing.T) {
	entries := make([]logging.LogEntry, 5)
	for i := range entries {
		entries[i].Message = fmt.Sprintf("m%d", i)
	}

	tests := []struct {
		n         int
		wantLen   int
		wantFirst string
	}{
		{0, 5, "m0"},
		{-1, 5, "m0"},
		{2, 2, "m3"},
		{10, 5, "m0"},
	}
	for _, tt := range tests {
		got := tailEntries(entries, tt.n)
		if len(got) != tt.wantLen || got[0].Message != tt.wantFirst {
			t.Errorf("tailEntries(%d) = %d entries starting %q, want %d starting %q",
				tt.n, len(got), got[0].Message, tt.wantLen, tt.wantFirst)
		}
	}
}

func TestWorkflowTable(t *testing.T) {
	catalog, err := workflow.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	out := workflowTable(catalog.All())
	for _, want := range []string{"fork", "status", "test", "provider=github [github|gitlab]", "branch=main"} {
		if !strings.Contains(out, want) {
			t.Errorf("workflow table missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryTable(t *testing.T) {
	out := historyTable([]history.Summary{{
		RunID:           "6f1c2a90-aaaa-bbbb-cccc-000000000000",
		Workflow:        "status",
		StartedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DurationSeconds: 75,
		Reason:          "completed",
		ExitCode:        1,
		Targets:         3,
		Succeeded:       2,
	}})
	for _, want := range []string{"6f1c2a90", "status", "completed", "2/3"} {
		if !strings.Contains(out, want) {
			t.Errorf("history table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "aaaa") {
		t.Errorf("history table shows the full run id:\n%s", out)
	}
}

// writeTestConfig writes a config that runs script quietly with all state
// under a temporary directory.
func writeTestConfig(t *testing.T, script string) (path, stateDir string) {
	t.Helper()
	dir := t.TempDir()
	stateDir = filepath.Join(dir, "state")
	content := fmt.Sprintf(`organization: acme
agent:
  command: %q
  model: ""
  args: []
run:
  grace_period_seconds: 1
  silence_warning_seconds: 0
display:
  verbosity: quiet
paths:
  log_dir: %q
  state_dir: %q
logging:
  enabled: false
`, script, filepath.Join(dir, "logs"), stateDir)
	return testutil.WriteFile(t, dir, "config.yaml", content), stateDir
}

// execute runs the root command with args and returns stdout and the exit code.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	code := Execute()
	return out.String(), code
}

func TestExecuteTestWorkflow(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	tests := []struct {
		name        string
		output      []string
		wantOutcome string
		wantCode    int
	}{
		{
			name:        "passing",
			output:      []string{"✓ billing: Compiled successfully, 12 tests passed"},
			wantOutcome: report.OutcomeSuccess,
			wantCode:    report.ExitOK,
		},
		{
			name:        "failing",
			output:      []string{"✗ billing: Compilation failed"},
			wantOutcome: report.OutcomeError,
			wantCode:    report.ExitTargetFailures,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := testutil.FakeAgent(t, tt.output, 0)
			cfgPath, stateDir := writeTestConfig(t, script)

			out, code := execute(t, "--config", cfgPath, "test", "billing", "--json")
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\noutput:\n%s", code, tt.wantCode, out)
			}

			rep, err := report.Decode([]byte(out))
			if err != nil {
				t.Fatalf("report.Decode() error = %v\noutput:\n%s", err, out)
			}
			if rep.Workflow != "test" || len(rep.Targets) != 1 {
				t.Fatalf("report = %+v", rep)
			}
			if got := rep.Targets[0]; got.Name != "billing" || got.Outcome != tt.wantOutcome {
				t.Errorf("target = %+v, want billing %s", got, tt.wantOutcome)
			}

			store, err := history.Open(filepath.Join(stateDir, "history.db"))
			if err != nil {
				t.Fatalf("history.Open() error = %v", err)
			}
			defer func() { _ = store.Close() }()
			if _, err := store.Get(t.Context(), rep.RunID); err != nil {
				t.Errorf("run %s not recorded: %v", rep.RunID, err)
			}
		})
	}
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	script := testutil.FakeAgent(t, nil, 0)
	cfgPath, _ := writeTestConfig(t, script)

	_, code := execute(t, "--config", cfgPath, "run", "deploy", "billing")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
