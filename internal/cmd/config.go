package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify shepherd configuration",
	Long: `View or modify shepherd configuration.

Without arguments, displays the effective configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  shepherd config set organization acme
  shepherd config set run.timeout_minutes 20
  shepherd config set display.verbosity verbose

Valid keys:
  organization                 - Organization substituted into prompts
  agent.command                - Agent executable
  agent.model                  - Model passed as --model ("" to omit)
  agent.use_pty                - Run the agent on a pseudo-terminal (true/false)
  run.timeout_minutes          - Maximum run duration (0 disables)
  run.grace_period_seconds     - Wait between terminate and kill
  run.silence_warning_seconds  - Warn after this long without output (0 disables)
  run.max_late_markers         - Markers accepted after a target finishes
  display.verbosity            - minimal, verbose or quiet
  display.refresh_interval_ms  - Live view redraw cadence
  display.narrative_lines      - Recent output lines in verbose mode
  paths.log_dir                - Directory for run transcripts
  paths.state_dir              - Directory for debug.log and history
  paths.workflows_file         - YAML file adding or overriding workflows
  logging.enabled              - Write the debug log (true/false)
  logging.level                - debug, info, warn or error
  metrics.textfile             - Prometheus textfile written after each run`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/shepherd/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// settableKeys maps each key accepted by "config set" to its value kind.
var settableKeys = map[string]string{
	"organization":                "string",
	"agent.command":               "string",
	"agent.model":                 "string",
	"agent.use_pty":               "bool",
	"run.timeout_minutes":         "int",
	"run.grace_period_seconds":    "int",
	"run.silence_warning_seconds": "int",
	"run.max_late_markers":        "int",
	"display.verbosity":           "string",
	"display.refresh_interval_ms": "int",
	"display.narrative_lines":     "int",
	"paths.log_dir":               "string",
	"paths.state_dir":             "string",
	"paths.workflows_file":        "string",
	"logging.enabled":             "bool",
	"logging.level":               "string",
	"metrics.textfile":            "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to render configuration")
	}
	_, err = out.Write(data)
	return err
}

// parseSettingValue converts value to the kind registered for key.
func parseSettingValue(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, errors.NewValidationError("unknown configuration key").
			WithField(key).
			WithCause(fmt.Errorf("run 'shepherd config set --help' to see valid keys"))
	}

	switch kind {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, errors.NewValidationError("expected true or false").WithField(key).WithValue(value)
		}
		return b, nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.NewValidationError("expected integer").WithField(key).WithValue(value)
		}
		if n < 0 {
			return nil, errors.NewValidationError("must be non-negative").WithField(key).WithValue(value)
		}
		return n, nil
	}

	switch key {
	case "display.verbosity":
		if !slices.Contains(config.ValidVerbosities(), value) {
			return nil, errors.NewValidationError("must be one of " + strings.Join(config.ValidVerbosities(), ", ")).
				WithField(key).WithValue(value)
		}
	case "logging.level":
		if !slices.Contains(logging.ValidLevels(), strings.ToUpper(value)) {
			return nil, errors.NewValidationError("must be one of debug, info, warn, error").
				WithField(key).WithValue(value)
		}
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	typed, err := parseSettingValue(key, value)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typed)

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typed)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigTemplate = `# shepherd configuration

# Substituted for {{ORGANIZATION}} in workflow prompts
organization: ""

# Known targets; glob arguments such as "pay*" expand against this list
targets: []

# The wrapped coding agent
agent:
  command: copilot
  # Passed as --model; leave empty to omit the flag
  model: claude-sonnet-4.5
  # Appended after the prompt
  args:
    - --allow-all-tools
  # Run the agent on a pseudo-terminal instead of pipes
  use_pty: false

run:
  # Maximum run duration (0 disables the limit)
  timeout_minutes: 10
  # Wait between terminate and kill when stopping the agent
  grace_period_seconds: 10
  # Warn after this long without agent output (0 disables)
  silence_warning_seconds: 30
  # Status markers a finished target may still receive before they are dropped
  max_late_markers: 20

display:
  # minimal, verbose or quiet
  verbosity: minimal
  refresh_interval_ms: 250
  # Recent output lines shown in verbose mode
  narrative_lines: 10

paths:
  # One transcript per run is written here
  log_dir: logs
  # debug.log and history.db (default: ~/.config/shepherd)
  state_dir: ""
  history_db: ""
  # Optional YAML file that adds or overrides workflows
  workflows_file: ""

logging:
  enabled: true
  level: info
  max_size_mb: 10
  max_backups: 3
  compress: false

metrics:
  # Prometheus textfile written after each run (empty disables)
  textfile: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'shepherd config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize shepherd's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: SHEPHERD_* (e.g., SHEPHERD_RUN_TIMEOUT_MINUTES)")
	return nil
}
