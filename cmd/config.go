package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write .embr/config.yaml",
	Long: `Keys:
  core.default_model      model used when store has no --model
  core.compression        none, zstd or lz4 for new objects
  core.lock_timeout       how long to wait for a lock, e.g. 10s
  diff.neighbors          neighbour count for diff
  diff.method             default cross-model method
  embeddings.provider     provider for store --generate (openai)
  embeddings.model        provider model name
  embeddings.base_url     OpenAI-compatible endpoint
  embeddings.dimensions   requested output dimensions
  remotes.<name>.url|endpoint|region|secure

Every key can be overridden by EMBR_<KEY> in the environment, dots replaced
by underscores.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every setting",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigList(_ *cobra.Command, _ []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	for _, kv := range r.Config.List() {
		fmt.Fprintf(stdout, "%s=%s\n", kv.Key, kv.Value)
	}
	return nil
}

func runConfigGet(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	v, err := r.Config.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, v)
	return nil
}

func runConfigSet(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	if err := r.Config.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := r.SaveConfig(); err != nil {
		return err
	}
	printOK(args[0], args[1])
	return nil
}
