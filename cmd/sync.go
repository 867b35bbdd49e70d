package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push [remote]",
	Short: "Upload objects and the active set to a remote",
	Long: `Upload every object the remote lacks, then the active set's history and
index. The remote defaults to origin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull [remote]",
	Short: "Download the active set from a remote",
	Long: `Download the remote's history of the active set together with the
objects it references (each verified against its hash) and adopt it.

Pull only fast-forwards: the local history must be empty or a prefix of the
remote one. --force replaces a diverged local history with the remote's.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPull,
}

var flagPullForce bool

func init() {
	pullCmd.Flags().BoolVar(&flagPullForce, "force", false, "Replace diverged local history")
	rootCmd.AddCommand(pushCmd, pullCmd)
}

func remoteArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func runPush(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	res, err := r.Push(cmd.Context(), remoteArg(args))
	if err != nil {
		return err
	}
	printOK(res.Remote, fmt.Sprintf("pushed set %s (%d new object(s))", res.Set, res.Objects))
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	res, err := r.Pull(cmd.Context(), remoteArg(args), flagPullForce)
	if err != nil {
		return err
	}
	if res.UpToDate {
		printSkip(res.Remote, "set "+res.Set+" already up to date")
		return nil
	}
	printOK(res.Remote, fmt.Sprintf("pulled set %s (%d new object(s))", res.Set, res.Objects))
	return nil
}
