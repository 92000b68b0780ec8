package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/display"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/history"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/metrics"
	"github.com/Iron-Ham/shepherd/internal/runner"
	"github.com/Iron-Ham/shepherd/internal/supervisor"
	"github.com/Iron-Ham/shepherd/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow> <targets...>",
	Short: "Run any catalog workflow over targets",
	Long: `Run a workflow from the catalog over one or more targets.

Targets containing *, ?, [ or { are expanded against the targets listed in
the config file.

Examples:
  # Fork two services from the default branch
  shepherd run fork billing ledger

  # Gather status from gitlab for every payments service
  shepherd run status 'payments-*' --arg provider=gitlab`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		given, err := parseArgFlags(runArgFlags)
		if err != nil {
			return err
		}
		return executeWorkflow(cmd, args[0], args[1:], given)
	},
}

var runArgFlags []string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&runArgFlags, "arg", nil, "workflow argument as name=value (repeatable)")
	runCmd.Flags().Bool("json", false, "print the final report as JSON")

	// Built-in workflows also get a command of their own.
	catalog, err := workflow.Builtin()
	if err != nil {
		return
	}
	for _, def := range catalog.All() {
		rootCmd.AddCommand(newWorkflowCmd(def))
	}
}

// newWorkflowCmd builds "<workflow> <targets...>" with one flag per
// declared argument.
func newWorkflowCmd(def *workflow.Definition) *cobra.Command {
	cmd := &cobra.Command{
		Use:   def.Name + " <targets...>",
		Short: def.Description,
		Args:  cobra.MinimumNArgs(1),
	}
	for _, a := range def.Arguments {
		usage := a.Description
		if len(a.Allowed) > 0 {
			usage += " (" + strings.Join(a.Allowed, "|") + ")"
		}
		cmd.Flags().String(a.Name, a.Default, usage)
	}
	cmd.Flags().Bool("json", false, "print the final report as JSON")

	cmd.RunE = func(cmd *cobra.Command, targets []string) error {
		given := make(map[string]string)
		for _, a := range def.Arguments {
			if cmd.Flags().Changed(a.Name) {
				given[a.Name], _ = cmd.Flags().GetString(a.Name)
			}
		}
		return executeWorkflow(cmd, def.Name, targets, given)
	}
	return cmd
}

// parseArgFlags turns name=value pairs into a map.
func parseArgFlags(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewValidationError("argument must be name=value").WithField("arg").WithValue(pair)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func executeWorkflow(cmd *cobra.Command, name string, targetArgs []string, given map[string]string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	catalog, err := workflow.Load(cfg.Paths.WorkflowsFile)
	if err != nil {
		return err
	}
	def, err := catalog.Get(name)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(catalog.Names(), ", "))
	}
	targets, err := cfg.ExpandTargets(targetArgs)
	if err != nil {
		return err
	}

	logger := openLogger(cfg)
	defer func() { _ = logger.Close() }()

	agent, err := supervisor.OpenAgent(cfg.Agent)
	if err != nil {
		return err
	}
	defer func() {
		if n := agent.Running(); n > 0 {
			logger.Warn("killing agent processes still running", "count", n)
		}
		if err := agent.Close(); err != nil {
			logger.Warn("agent cleanup failed", "error", err)
		}
	}()

	opts := []runner.Option{runner.WithLogger(logger)}

	var rec *metrics.PrometheusRecorder
	if cfg.Metrics.Textfile != "" {
		rec = metrics.NewPrometheusRecorder()
		opts = append(opts, runner.WithMetrics(rec))
	}

	if store, err := history.Open(cfg.Paths.ResolveHistoryDB()); err != nil {
		logger.Warn("run history unavailable", "error", err)
	} else {
		defer func() { _ = store.Close() }()
		opts = append(opts, runner.WithHistory(store))
	}

	progress := cmd.ErrOrStderr()
	opts = append(opts, runner.WithDisplay(progress, liveOptions(cfg, progress)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, runErr := runner.New(agent, cfg, opts...).Run(ctx, runner.Invocation{
		Workflow: def,
		Targets:  targets,
		Args:     given,
	})
	if rep == nil {
		return runErr
	}

	if rec != nil {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := rep.WriteJSON(out); err != nil {
			return err
		}
	} else {
		_, isTTY := terminalWidth(out)
		ropts := display.Options{Verbosity: display.ParseVerbosity(cfg.Display.Verbosity)}
		if isTTY {
			ropts.Renderer = lipgloss.NewRenderer(out)
		}
		fmt.Fprint(out, display.RenderReport(rep, ropts))
	}

	if code := rep.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// liveOptions configures progress output for w.
func liveOptions(cfg *config.Config, w io.Writer) display.LiveOptions {
	width, interactive := terminalWidth(w)
	opts := display.LiveOptions{
		Options: display.Options{
			Verbosity: display.ParseVerbosity(cfg.Display.Verbosity),
			Width:     width,
		},
		Refresh:     cfg.Display.RefreshInterval(),
		Interactive: interactive,
	}
	if interactive {
		opts.Renderer = lipgloss.NewRenderer(w)
	}
	return opts
}

// terminalWidth reports the width of w and whether it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0, true
	}
	return width, true
}

// openLogger returns the debug logger, or a no-op logger when logging is
// disabled or the state directory is unusable.
func openLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(cfg.Paths.ResolveStateDir(), logging.Options{
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: debug log disabled:", err)
		return logging.NopLogger()
	}
	return logger
}
