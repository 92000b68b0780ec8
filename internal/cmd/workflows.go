package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/workflow"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the workflow catalog",
	Long: `List the built-in workflows and any added or overridden by the file
named in paths.workflows_file.`,
	Args: cobra.NoArgs,
	RunE: runWorkflows,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	catalog, err := workflow.Load(cfg.Paths.WorkflowsFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, workflowTable(catalog.All()))
	return nil
}

// workflowTable renders one row per definition.
func workflowTable(defs []*workflow.Definition) string {
	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		payload := "no"
		if def.ExpectsPayload {
			payload = "yes"
		}
		rows = append(rows, []string{def.Name, formatArguments(def.Arguments), payload, def.Source, def.Description})
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Workflow", "Arguments", "Payload", "Source", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			return cell
		}).
		String()
}

// formatArguments renders "name=default [a|b]" for each argument.
func formatArguments(args []workflow.Argument) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		s := a.Name + "=" + a.Default
		if len(a.Allowed) > 0 {
			s += " [" + strings.Join(a.Allowed, "|") + "]"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
