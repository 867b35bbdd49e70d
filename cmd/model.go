package cmd

import (
	"fmt"

	"github.com/kamusis/embr/internal/model"
	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage registered embedding models",
}

var modelRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register (or update) a model",
	Long: `Register a model so stores against it are checked for dimensions and,
with --normalize, L2-normalized before hashing.

Re-registering updates the description and normalize flag. The dimensions of
a model can only change while no set has stored anything under it.

Examples:
  embr model register text-embedding-3-small --dimensions 1536 --normalize
  embr model register bge-m3 --dimensions 1024 --description "local BGE"`,
	Args: cobra.ExactArgs(1),
	RunE: runModelRegister,
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	Args:  cobra.NoArgs,
	RunE:  runModelList,
}

var (
	flagModelDims        int
	flagModelNormalize   bool
	flagModelDescription string
)

func init() {
	modelRegisterCmd.Flags().IntVar(&flagModelDims, "dimensions", 0, "Embedding dimensions")
	modelRegisterCmd.Flags().BoolVar(&flagModelNormalize, "normalize", false, "L2-normalize embeddings on store")
	modelRegisterCmd.Flags().StringVar(&flagModelDescription, "description", "", "Free-form description")
	modelCmd.AddCommand(modelRegisterCmd, modelListCmd)
	rootCmd.AddCommand(modelCmd)
}

func runModelRegister(_ *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	updated, err := r.RegisterModel(model.Model{
		Name:        args[0],
		Dimensions:  flagModelDims,
		Normalize:   flagModelNormalize,
		Description: flagModelDescription,
	})
	if err != nil {
		return err
	}
	verb := "Registered"
	if updated {
		verb = "Updated"
	}
	printOK(args[0], fmt.Sprintf("%s model (%d dimensions)", verb, flagModelDims))
	return nil
}

func runModelList(_ *cobra.Command, _ []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	models, err := r.Models()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		printSkip("", "no models registered")
		return nil
	}
	for _, m := range models {
		line := fmt.Sprintf("%-32s %6d dims", m.Name, m.Dimensions)
		if m.Normalize {
			line += "  normalize"
		}
		if m.Description != "" {
			line += "  " + dimStyle.Render(m.Description)
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}
