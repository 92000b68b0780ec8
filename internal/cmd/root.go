package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/report"
)

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Supervise a coding agent across many repositories",
	Long: `Shepherd runs scripted workflows (fork, status, test) over a set of
target repositories by driving an external coding agent. It follows the
agent's output live, tracks every target's progress and ends with a report
whose exit code reflects the outcome.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, errors.ErrSpawnFailed) {
		return report.ExitSpawnFailed
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/shepherd/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "show every phase, tool call and recent agent output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "print only the final report")
	rootCmd.PersistentFlags().String("log-dir", "", "directory for run transcripts")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("paths.log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SHEPHERD")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SHEPHERD_RUN_TIMEOUT_MINUTES for run.timeout_minutes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig applies the verbosity flags and returns the validated config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		viper.Set("display.verbosity", config.VerbosityVerbose)
	}
	if q, _ := cmd.Flags().GetBool("quiet"); q {
		viper.Set("display.verbosity", config.VerbosityQuiet)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewConfigError("", "invalid configuration", err)
	}
	return cfg, nil
}
