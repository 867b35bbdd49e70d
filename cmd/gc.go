package cmd

import (
	"fmt"
	"time"

	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/repo"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete objects no set refers to",
	Long: `Delete pool objects that no set's index or history references, plus
leftovers of interrupted writes. Only objects older than --prune are deleted
so that a store running concurrently never loses its object.

Examples:
  embr gc --dry-run
  embr gc --prune 24h
  embr gc --prune now`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

var (
	flagGCDryRun bool
	flagGCPrune  string
)

func init() {
	gcCmd.Flags().BoolVar(&flagGCDryRun, "dry-run", false, "Only report what would be deleted")
	gcCmd.Flags().StringVar(&flagGCPrune, "prune", repo.DefaultPrune.String(), `Minimum age of deleted objects, or "now"`)
	rootCmd.AddCommand(gcCmd)
}

func runGC(_ *cobra.Command, _ []string) error {
	prune, err := parsePrune(flagGCPrune)
	if err != nil {
		return err
	}
	r, err := openRepo()
	if err != nil {
		return err
	}
	rep, err := r.GC(repo.GCOptions{Prune: prune, DryRun: flagGCDryRun})
	if err != nil {
		return err
	}
	verb := "removed"
	if flagGCDryRun {
		verb = "would remove"
	}
	for _, h := range rep.Removed {
		printInfo("", verb+" "+h)
	}
	for _, name := range rep.Swept {
		printInfo("", verb+" stale file "+name)
	}
	printOK("", fmt.Sprintf("%d object(s) %s, %d kept", len(rep.Removed), verb, rep.Kept))
	if rep.Young > 0 {
		printSkip("", fmt.Sprintf("%d unreferenced object(s) younger than %s left alone", rep.Young, flagGCPrune))
	}
	return nil
}

func parsePrune(s string) (time.Duration, error) {
	if s == "now" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errs.Errorf(errs.CodeInputInvalid, "invalid --prune %q (want a duration like 336h, or now)", s)
	}
	return d, nil
}
