package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <source>",
	Short: "Stop tracking a file",
	Long: `Remove <source> (or only its --model embedding) from the active set's
index. The removal is logged in the history. Stored objects stay in the pool,
so storing the same embedding again reuses them; 'embr gc' reclaims objects no
set refers to.

--cached is accepted for git familiarity: plain rm already keeps the objects,
so both forms behave the same.`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var (
	flagRmModel  string
	flagRmCached bool
)

func init() {
	rmCmd.Flags().StringVar(&flagRmModel, "model", "", "Only untrack this model's embedding")
	rmCmd.Flags().BoolVar(&flagRmCached, "cached", false, "Same as plain rm: untrack and keep the objects")
	rootCmd.AddCommand(rmCmd)
}

func runRm(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	source, removed, err := r.Remove(args[0], flagRmModel)
	if err != nil {
		return err
	}
	printOK(source, "untracked ("+strings.Join(removed, ", ")+")")
	return nil
}
