package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <hash> <source>",
	Short: "Make an earlier embedding current again",
	Long: `Point <source>'s current embedding back at <hash> (full or unambiguous
prefix). History is never rewritten: the rollback is appended as a new event,
so the version being replaced stays reachable.

--model is needed only when <source> is tracked under several models and the
object's own model does not settle it.`,
	Args: cobra.ExactArgs(2),
	RunE: runRollback,
}

var flagRollbackModel string

func init() {
	rollbackCmd.Flags().StringVar(&flagRollbackModel, "model", "", "Model whose pointer to move")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	res, err := r.Rollback(args[0], args[1], flagRollbackModel)
	if err != nil {
		return err
	}
	if res.NoOp {
		printSkip(res.Source, fmt.Sprintf("%s is already current for %s", shortHash(res.Hash), res.Model))
		return nil
	}
	if !res.Seen {
		printWarn(res.Source, "target was never recorded for this file and model")
	}
	printOK(res.Source, fmt.Sprintf("rolled back %s: %s → %s", res.Model, shortHash(res.Previous), res.Hash))
	return nil
}
