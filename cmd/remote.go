package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage push/pull remotes",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add (or update) a remote",
	Long: `Configure a blob store to push objects and set history to.

Supported URLs:
  /abs/dir, ./rel/dir, file:///abs/dir   a local or mounted directory
  s3://bucket/prefix                     any S3-compatible store

S3 credentials come from EMBR_REMOTE_ACCESS_KEY / EMBR_REMOTE_SECRET_KEY
(environment or .embr/.env), falling back to the AWS_* variables. Set
remotes.<name>.endpoint for MinIO and other non-AWS services.

Examples:
  embr remote add origin s3://team-embeddings/project-x
  embr remote add backup /mnt/nas/embr`,
	Args: cobra.ExactArgs(2),
	RunE: runRemoteAdd,
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes",
	Args:  cobra.NoArgs,
	RunE:  runRemoteList,
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteRemove,
}

func init() {
	remoteCmd.AddCommand(remoteAddCmd, remoteListCmd, remoteRemoveCmd)
	rootCmd.AddCommand(remoteCmd)
}

func runRemoteAdd(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	name, url := args[0], args[1]
	existing, had := r.Config.Remotes[name]
	if had && existing.URL == url {
		printSkip(name, "already set to "+url)
		return nil
	}
	if err := r.AddRemote(name, url); err != nil {
		return err
	}
	if had {
		printOK(name, fmt.Sprintf("updated: %s → %s", existing.URL, url))
	} else {
		printOK(name, "added: "+url)
	}
	printInfo("", "Run 'embr push "+name+"' to upload the active set.")
	return nil
}

func runRemoteList(_ *cobra.Command, _ []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	names := r.Remotes()
	if len(names) == 0 {
		printSkip("", "no remotes configured")
		return nil
	}
	for _, name := range names {
		rc := r.Config.Remotes[name]
		line := fmt.Sprintf("%-12s %s", name, rc.URL)
		if rc.Endpoint != "" {
			line += dimStyle.Render("  endpoint " + rc.Endpoint)
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func runRemoteRemove(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	if err := r.RemoveRemote(args[0]); err != nil {
		return err
	}
	printOK(args[0], "removed")
	return nil
}
