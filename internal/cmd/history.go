package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/history"
	"github.com/Iron-Ham/shepherd/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Long: `List recent runs recorded in the history database.

Examples:
  # Show the last 20 runs
  shepherd history

  # Show the last 5 status runs
  shepherd history list --workflow status -n 5

  # Print the full report of a run (a unique id prefix is enough)
  shepherd history show 6f1c2a90`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the stored report of a run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var (
	historyLimit    int
	historyWorkflow string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)

	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultListLimit, "Number of runs to show")
		c.Flags().StringVarP(&historyWorkflow, "workflow", "w", "", "Only show runs of this workflow")
	}
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.Paths.ResolveHistoryDB())
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(cmd.Context(), historyWorkflow, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(out, historyTable(runs))
	return nil
}

// historyTable renders run summaries, newest first.
func historyTable(runs []history.Summary) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			r.Workflow,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			util.FormatDuration(r.Duration()),
			r.Reason,
			fmt.Sprintf("%d", r.ExitCode),
			fmt.Sprintf("%d/%d", r.Succeeded, r.Targets),
		})
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Run", "Workflow", "Started", "Duration", "Reason", "Exit", "Succeeded").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			return cell
		}).
		String()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return rep.WriteJSON(cmd.OutOrStdout())
}
