package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/kamusis/embr/internal/repo"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create an embedding repository",
	Long: `Create .embr/ in dir (default: the current directory) with an empty
object pool, the main set, default config.yaml and a .env template for
API keys.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	r, err := repo.Init(dir, logger)
	if err != nil {
		return err
	}
	printOK("", fmt.Sprintf("Initialized empty embedding repository in %s", r.Dir))
	printInfo("", "Secrets go in "+filepath.Join(r.Dir, ".env")+"; register models with 'embr model register'.")
	return nil
}
