package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete shepherd configuration
type Config struct {
	// Organization is substituted for {{ORGANIZATION}} in workflow prompts
	Organization string `mapstructure:"organization"`
	// Targets is the catalog of known target names; glob arguments expand against it
	Targets []string `mapstructure:"targets"`

	Agent   AgentConfig   `mapstructure:"agent"`
	Run     RunConfig     `mapstructure:"run"`
	Display DisplayConfig `mapstructure:"display"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AgentConfig describes the wrapped coding agent executable
type AgentConfig struct {
	// Command is the executable name or path (default: "copilot")
	Command string `mapstructure:"command"`
	// Model is passed as --model when non-empty
	Model string `mapstructure:"model"`
	// Args are appended after the prompt (default: ["--allow-all-tools"])
	Args []string `mapstructure:"args"`
	// UsePTY runs the agent attached to a pseudo-terminal instead of pipes
	UsePTY bool `mapstructure:"use_pty"`
}

// RunConfig controls supervision of a single run
type RunConfig struct {
	// TimeoutMinutes is the maximum run duration (0 disables the limit)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// GracePeriodSeconds is the wait between terminate and kill
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
	// SilenceWarningSeconds logs a warning after this long without output (0 disables)
	SilenceWarningSeconds int `mapstructure:"silence_warning_seconds"`
	// WorkDir is the agent working directory (default: current directory)
	WorkDir string `mapstructure:"work_dir"`
	// MaxLateMarkers is how many status markers a finished target may receive
	// before further markers are ignored
	MaxLateMarkers int `mapstructure:"max_late_markers"`
}

// DisplayConfig controls the live terminal view
type DisplayConfig struct {
	// Verbosity is one of "minimal", "verbose", "quiet"
	Verbosity string `mapstructure:"verbosity"`
	// RefreshIntervalMs is the redraw cadence
	RefreshIntervalMs int `mapstructure:"refresh_interval_ms"`
	// NarrativeLines is the size of the rolling narrative window in verbose mode
	NarrativeLines int `mapstructure:"narrative_lines"`
}

// PathsConfig controls where shepherd reads and writes files
type PathsConfig struct {
	// LogDir receives one transcript log per run
	LogDir string `mapstructure:"log_dir"`
	// StateDir holds debug.log and the history database (default: ConfigDir())
	StateDir string `mapstructure:"state_dir"`
	// HistoryDB is the SQLite run history path (default: {state_dir}/history.db)
	HistoryDB string `mapstructure:"history_db"`
	// WorkflowsFile is an optional YAML catalog that adds or overrides workflows
	WorkflowsFile string `mapstructure:"workflows_file"`
}

// LoggingConfig controls the debug log
type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls Prometheus metric export
type MetricsConfig struct {
	// Textfile, when set, receives run metrics in the node_exporter textfile format
	Textfile string `mapstructure:"textfile"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Command: "copilot",
			Model:   "claude-sonnet-4.5",
			Args:    []string{"--allow-all-tools"},
		},
		Run: RunConfig{
			TimeoutMinutes:        10,
			GracePeriodSeconds:    10,
			SilenceWarningSeconds: 30,
			MaxLateMarkers:        20,
		},
		Display: DisplayConfig{
			Verbosity:         VerbosityMinimal,
			RefreshIntervalMs: 250,
			NarrativeLines:    10,
		},
		Paths: PathsConfig{
			LogDir: "logs",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Timeout returns the run limit as a time.Duration (0 means disabled)
func (c *RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// GracePeriod returns the terminate-to-kill wait as a time.Duration
func (c *RunConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// SilenceWarning returns the silence threshold as a time.Duration (0 means disabled)
func (c *RunConfig) SilenceWarning() time.Duration {
	return time.Duration(c.SilenceWarningSeconds) * time.Second
}

// RefreshInterval returns the redraw cadence as a time.Duration
func (c *DisplayConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// ResolveStateDir returns StateDir, falling back to ConfigDir()
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir != "" {
		return expandHome(p.StateDir)
	}
	return ConfigDir()
}

// ResolveHistoryDB returns HistoryDB, falling back to {state_dir}/history.db
func (p *PathsConfig) ResolveHistoryDB() string {
	if p.HistoryDB != "" {
		return expandHome(p.HistoryDB)
	}
	return filepath.Join(p.ResolveStateDir(), "history.db")
}

// ResolveLogDir returns LogDir with ~ expanded
func (p *PathsConfig) ResolveLogDir() string {
	return expandHome(p.LogDir)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("organization", defaults.Organization)
	viper.SetDefault("targets", defaults.Targets)

	// Agent defaults
	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.model", defaults.Agent.Model)
	viper.SetDefault("agent.args", defaults.Agent.Args)
	viper.SetDefault("agent.use_pty", defaults.Agent.UsePTY)

	// Run defaults
	viper.SetDefault("run.timeout_minutes", defaults.Run.TimeoutMinutes)
	viper.SetDefault("run.grace_period_seconds", defaults.Run.GracePeriodSeconds)
	viper.SetDefault("run.silence_warning_seconds", defaults.Run.SilenceWarningSeconds)
	viper.SetDefault("run.work_dir", defaults.Run.WorkDir)
	viper.SetDefault("run.max_late_markers", defaults.Run.MaxLateMarkers)

	// Display defaults
	viper.SetDefault("display.verbosity", defaults.Display.Verbosity)
	viper.SetDefault("display.refresh_interval_ms", defaults.Display.RefreshIntervalMs)
	viper.SetDefault("display.narrative_lines", defaults.Display.NarrativeLines)

	// Paths defaults
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.history_db", defaults.Paths.HistoryDB)
	viper.SetDefault("paths.workflows_file", defaults.Paths.WorkflowsFile)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shepherd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shepherd"
	}
	return filepath.Join(home, ".config", "shepherd")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
