package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log",
	Long: `View and filter shepherd's structured debug log.

Run transcripts are separate files in paths.log_dir; this command reads the
debug log in paths.state_dir, which records what shepherd itself did.

Examples:
  # Show the last 50 entries
  shepherd logs

  # Show every entry of one run
  shepherd logs --run 6f1c2a90-... -n 0

  # Warnings and errors about one target in the last hour
  shepherd logs --target billing --level warn --since 1h

  # Export a workflow's entries as CSV
  shepherd logs --workflow status --export status.csv --format csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsRunID    string
	logsWorkflow string
	logsTarget   string
	logsTail     int
	logsLevel    string
	logsSince    string
	logsGrep     string
	logsExport   string
	logsFormat   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsRunID, "run", "", "Only entries of this run ID")
	logsCmd.Flags().StringVar(&logsWorkflow, "workflow", "", "Only entries of this workflow")
	logsCmd.Flags().StringVar(&logsTarget, "target", "", "Only entries about this target")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "Write matching entries to this file instead of stdout")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json or csv")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	filter, err := buildLogFilter(time.Now())
	if err != nil {
		return err
	}

	entries, err := logging.AggregateLogs(cfg.Paths.ResolveStateDir())
	if err != nil {
		return err
	}
	entries = tailEntries(logging.FilterLogs(entries, filter), logsTail)

	if logsExport != "" {
		if err := logging.ExportLogEntries(entries, logsExport, logsFormat); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(entries), logsExport)
		return nil
	}
	return logging.WriteLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}

// buildLogFilter turns the command flags into a filter relative to now.
func buildLogFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{
		RunID:           logsRunID,
		Workflow:        logsWorkflow,
		Target:          logsTarget,
		MessageContains: logsGrep,
	}

	if logsLevel != "" {
		level := strings.ToUpper(logsLevel)
		if !slices.Contains(logging.ValidLevels(), level) {
			return filter, errors.NewValidationError("must be one of debug, info, warn, error").
				WithField("level").WithValue(logsLevel)
		}
		filter.Level = level
	}

	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return filter, errors.NewValidationError("invalid duration").
				WithField("since").WithValue(logsSince).WithCause(err)
		}
		filter.StartTime = now.Add(-d)
	}
	return filter, nil
}

// tailEntries keeps the last n entries; n <= 0 keeps all.
func tailEntries(entries []logging.LogEntry, n int) []logging.LogEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
