package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <source>",
	Short: "Show the embedding history of a file",
	Long: `Print every store, rollback, merge and remove event recorded for <source>
in the active set, grouped by model, oldest first. The entry that is current
is marked with *.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
}

func runLog(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	source, logs, err := r.Log(args[0])
	if err != nil {
		return err
	}
	printSection(source)
	for _, ml := range logs {
		printBullet(ml.Model)
		for _, e := range ml.Entries {
			marker := " "
			if e.Current {
				marker = okStyle.Render("*")
			}
			hash := e.Hash
			if hash == "" {
				hash = dimStyle.Render("(removed)")
			}
			line := fmt.Sprintf("  %s %s  %-8s %s", marker, e.Time.Local().Format("2006-01-02 15:04:05"), e.Action, hash)
			if e.Parent != "" {
				line += dimStyle.Render("  parent " + e.Parent[:min(12, len(e.Parent))])
			}
			fmt.Fprintln(stdout, line)
		}
	}
	return nil
}
