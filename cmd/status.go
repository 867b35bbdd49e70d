package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [source]",
	Short: "Show the current embeddings of a file, or of the whole set",
	Long: `With <source>, list the current hash per model for that file; -v adds its
most recent history. Without arguments, summarize the active set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var flagStatusVerbose bool

func init() {
	statusCmd.Flags().BoolVarP(&flagStatusVerbose, "verbose", "v", false, "Show recent history")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return printActiveSet(r)
	}

	st, err := r.Status(args[0], flagStatusVerbose)
	if err != nil {
		return err
	}
	printSection(st.Source)
	if !st.Tracked() {
		printMiss("", fmt.Sprintf("not tracked in set %s", st.Set))
		return nil
	}
	models := make([]string, 0, len(st.Current))
	for m := range st.Current {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		printOK(m, st.Current[m])
	}
	if flagStatusVerbose && len(st.Recent) > 0 {
		printBullet("Recent history:")
		for _, e := range st.Recent {
			fmt.Fprintf(stdout, "  %s  %-8s %-24s %s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"), e.Action, e.Model, shortHash(e.Hash))
		}
	}
	fmt.Fprintf(stdout, "\n  set: %s\n", st.Set)
	return nil
}
