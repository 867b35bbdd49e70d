package cmd

import (
	"fmt"

	"github.com/kamusis/embr/internal/errs"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check repository integrity",
	Long: `Check that every object still matches its hash, every set's history is
readable, and every index entry points at an existing object and agrees with
its history.

--rebuild-index replays the active set's history into a fresh index.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var flagDoctorRebuild bool

func init() {
	doctorCmd.Flags().BoolVar(&flagDoctorRebuild, "rebuild-index", false, "Rebuild the active set's index from its history")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	printSection("embr doctor")

	// ── 1. Configuration ─────────────────────────────────────────────────────
	printBullet("config.yaml")
	problems := r.Config.Validate()
	for _, p := range problems {
		printErr("", p.Error())
	}
	if len(problems) == 0 {
		printOK("", "valid")
	}

	// ── 2. Optional index rebuild ────────────────────────────────────────────
	if flagDoctorRebuild {
		printBullet("Rebuild")
		name, idx, err := r.RebuildIndex()
		if err != nil {
			return err
		}
		printOK(name, fmt.Sprintf("index rebuilt from history (%d tracked file(s))", len(idx.Sources())))
	}

	// ── 3. Objects and ledgers ───────────────────────────────────────────────
	rep, err := r.Verify(cmd.Context())
	if err != nil {
		return err
	}
	printBullet("Objects")
	objectProblems := 0
	for _, p := range rep.Problems {
		if p.Kind == "object" {
			printErr("", p.Detail)
			objectProblems++
		}
	}
	if objectProblems == 0 {
		printOK("", fmt.Sprintf("%d object(s) verified", rep.Objects))
	}
	printBullet("Sets")
	setProblems := 0
	for _, p := range rep.Problems {
		if p.Kind != "object" {
			printErr(p.Set, p.Kind+": "+p.Detail)
			setProblems++
		}
	}
	if setProblems == 0 {
		printOK("", fmt.Sprintf("%d set(s) consistent", rep.Sets))
	}

	total := len(problems) + len(rep.Problems)
	if total > 0 {
		return errs.Errorf(errs.CodeRepoVerifyCorrupt, "%d problem(s) found", total)
	}
	fmt.Fprintln(stdout)
	printOK("", "no problems found")
	return nil
}
