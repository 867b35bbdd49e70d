package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kamusis/embr/internal/repo"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Manage sets: isolated index/history namespaces over one object pool",
}

var setCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a set, empty or cloned from another",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetCreate,
}

var setListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sets; the active one is marked with *",
	Args:  cobra.NoArgs,
	RunE:  runSetList,
}

var setSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a set active",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetSwitch,
}

var setStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Summarize a set (default: the active set)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSetStatus,
}

var setDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a set and its history",
	Long: `Delete a set. main and the active set cannot be deleted; a set that still
tracks files needs --force. Objects stay in the pool until 'embr gc'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetDelete,
}

var setMergeCmd = &cobra.Command{
	Use:   "merge <from>",
	Short: "Merge another set's current embeddings into the active set",
	Long: `Bring every current pointer of <from> into the active set. Pointers the
active set lacks are added. When both sets track the same file and model with
different objects, --strategy decides:

  union   keep the active set's embedding (default)
  theirs  take <from>'s embedding
  mean    store the element-wise mean of the two`,
	Args: cobra.ExactArgs(1),
	RunE: runSetMerge,
}

var (
	flagSetDescription string
	flagSetFrom        string
	flagSetForce       bool
	flagSetStrategy    string
)

func init() {
	setCreateCmd.Flags().StringVar(&flagSetDescription, "description", "", "Free-form description")
	setCreateCmd.Flags().StringVar(&flagSetFrom, "from", "", "Clone index and history from this set")
	setDeleteCmd.Flags().BoolVar(&flagSetForce, "force", false, "Delete even if the set still tracks files")
	setMergeCmd.Flags().StringVar(&flagSetStrategy, "strategy", "union", "Conflict strategy: union, theirs or mean")
	setCmd.AddCommand(setCreateCmd, setListCmd, setSwitchCmd, setStatusCmd, setDeleteCmd, setMergeCmd)
	rootCmd.AddCommand(setCmd)
}

func runSetCreate(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	s, err := r.Sets.Create(args[0], flagSetDescription, flagSetFrom)
	if err != nil {
		return err
	}
	msg := "created"
	if s.Base != "" {
		msg += " from " + s.Base
	}
	printOK(s.Name, msg)
	printInfo("", "Run 'embr set switch "+s.Name+"' to use it.")
	return nil
}

func runSetList(_ *cobra.Command, _ []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	active, err := r.Sets.Active()
	if err != nil {
		return err
	}
	all, err := r.Sets.List()
	if err != nil {
		return err
	}
	for _, s := range all {
		marker := " "
		name := s.Name
		if s.Name == active {
			marker = "*"
			name = okStyle.Render(name)
		}
		line := fmt.Sprintf("%s %s", marker, name)
		if s.Description != "" {
			line += "  " + dimStyle.Render(s.Description)
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func runSetSwitch(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	if err := r.Sets.Switch(args[0]); err != nil {
		return err
	}
	printOK("", "Switched to set "+args[0])
	return nil
}

func runSetStatus(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	} else if name, err = r.Sets.Active(); err != nil {
		return err
	}
	st, err := r.Sets.Status(name)
	if err != nil {
		return err
	}
	s, err := r.Sets.Get(name)
	if err != nil {
		return err
	}
	printSection("Set " + st.Name)
	if st.Active {
		printOK("", "active")
	} else {
		printSkip("", "inactive")
	}
	if s.Description != "" {
		printInfo("", s.Description)
	}
	if s.Base != "" {
		printInfo("", "cloned from "+s.Base)
	}
	fmt.Fprintf(stdout, "  %d tracked file(s)\n", st.Tracked)
	if len(st.Models) > 0 {
		fmt.Fprintf(stdout, "  models: %s\n", strings.Join(st.Models, ", "))
	}
	return nil
}

func runSetDelete(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	if err := r.Sets.Delete(args[0], flagSetForce); err != nil {
		return err
	}
	printOK(args[0], "deleted")
	return nil
}

func runSetMerge(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	strategy, err := repo.ParseMergeStrategy(flagSetStrategy)
	if err != nil {
		return err
	}
	res, err := r.MergeSet(args[0], strategy)
	if err != nil {
		return err
	}
	printSection(fmt.Sprintf("Merge %s → %s (%s)", res.From, res.Into, res.Strategy))
	printOK("", fmt.Sprintf("%d pointer(s) added", res.Added))
	for _, c := range res.Conflicts {
		switch c.Result {
		case c.Ours:
			printSkip(c.Source, fmt.Sprintf("%s: kept %s", c.Model, shortHash(c.Ours)))
		case c.Theirs:
			printInfo(c.Source, fmt.Sprintf("%s: took %s", c.Model, shortHash(c.Theirs)))
		default:
			printInfo(c.Source, fmt.Sprintf("%s: averaged into %s", c.Model, shortHash(c.Result)))
		}
	}
	return nil
}

// printActiveSet lists every tracked file of the active set.
func printActiveSet(r *repo.Repo) error {
	name, l, err := r.ActiveSet()
	if err != nil {
		return err
	}
	idx, err := l.ReadIndex()
	if err != nil {
		return err
	}
	printSection("Set " + name)
	sources := idx.Sources()
	if len(sources) == 0 {
		printSkip("", "nothing tracked yet; run 'embr store'")
		return nil
	}
	for _, source := range sources {
		models := make([]string, 0, len(idx.Entries[source]))
		for m, h := range idx.Entries[source] {
			models = append(models, m+" "+shortHash(h))
		}
		sort.Strings(models)
		printOK(source, strings.Join(models, ", "))
	}
	fmt.Fprintf(stdout, "\n  %d tracked file(s)\n", len(sources))
	return nil
}
