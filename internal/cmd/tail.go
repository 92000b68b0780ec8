package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/transcript"
)

var tailCmd = &cobra.Command{
	Use:   "tail <log-file>",
	Short: "Follow a run transcript",
	Long: `Print a run transcript and follow it as the run appends lines.

Stops once the run's closing footer has been printed, or on Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := transcript.Follow(ctx, args[0], cmd.OutOrStdout())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
