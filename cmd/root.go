package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kamusis/embr/internal/logging"
	"github.com/kamusis/embr/internal/repo"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "embr",
	Short:        "embr — version control for vector embeddings",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `embr stores embeddings of your files in a content-addressed pool under
.embr/, keeps a history per file and model, and compares versions by
similarity, including across models.`,
	PersistentPreRunE: setup,
}

var (
	flagVerbose   bool
	flagLogFormat string
	flagLogLevel  string

	logger = logging.Discard()
)

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Log debug details to stderr")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error (default warn, or $EMBR_LOG_LEVEL)")
}

func setup(cmd *cobra.Command, _ []string) error {
	stdout = cmd.OutOrStdout()
	stderr = cmd.ErrOrStderr()
	l, err := logging.New(stderr, logging.Options{
		Level:   flagLogLevel,
		Format:  flagLogFormat,
		Verbose: flagVerbose,
	})
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(l)
	return nil
}

// openRepo finds the repository containing the working directory.
func openRepo() (*repo.Repo, error) {
	return repo.Open(".", logger)
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
