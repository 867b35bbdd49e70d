package cmd

import (
	"fmt"
	"strings"

	"github.com/kamusis/embr/internal/compare"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/repo"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <hash1> <hash2>",
	Short: "Compare two stored embeddings",
	Long: `Compare two objects by full hash or unambiguous prefix (at least 4 hex
characters).

Within one model the score is the cosine similarity, together with the
euclidean distance and how many of their nearest neighbours in the active set
the two share. --models M1,M2 compares embeddings of different models with
--method projection (default) or semantic, using files embedded by both
models as references.

Examples:
  embr diff 3f2a9c 81d0e4
  embr diff --models bge-m3,text-embedding-3-small 3f2a9c 81d0e4
  embr diff --models a,b --method semantic 3f2a9c 81d0e4`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var (
	flagDiffModel  string
	flagDiffModels string
	flagDiffMethod string
	flagDiffK      int
)

func init() {
	diffCmd.Flags().StringVar(&flagDiffModel, "model", "", "Model both embeddings belong to")
	diffCmd.Flags().StringVar(&flagDiffModels, "models", "", "Cross-model comparison: M1,M2")
	diffCmd.Flags().StringVar(&flagDiffMethod, "method", "", "Cross-model method: projection, semantic or cosine (default: diff.method)")
	diffCmd.Flags().IntVarP(&flagDiffK, "neighbors", "k", 0, "Neighbours used for neighbourhood preservation (default: diff.neighbors)")
	diffCmd.MarkFlagsMutuallyExclusive("model", "models")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	req := repo.DiffRequest{Ref1: args[0], Ref2: args[1], Model: flagDiffModel, K: flagDiffK}
	if flagDiffModels != "" {
		a, b, ok := strings.Cut(flagDiffModels, ",")
		if !ok || strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" || strings.Contains(b, ",") {
			return errs.Errorf(errs.CodeInputInvalid, "--models takes two model names: M1,M2 (got %q)", flagDiffModels)
		}
		req.ModelA, req.ModelB = strings.TrimSpace(a), strings.TrimSpace(b)
	}
	if flagDiffMethod != "" {
		if req.Method, err = compare.ParseMethod(flagDiffMethod); err != nil {
			return err
		}
	}

	res, err := r.Diff(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Similarity: %s\n", percent(res.Result.Similarity()))
	fmt.Fprintf(stdout, "  a: %s  %s (%d dims)\n", shortHash(res.HashA), res.ModelA, res.DimsA)
	fmt.Fprintf(stdout, "  b: %s  %s (%d dims)\n", shortHash(res.HashB), res.ModelB, res.DimsB)
	if res.Result.Identical {
		printInfo("", "identical objects")
		return nil
	}
	fmt.Fprintf(stdout, "  method:     %s\n", res.Result.Method)
	fmt.Fprintf(stdout, "  cosine:     %.6f\n", res.Result.Cosine)
	fmt.Fprintf(stdout, "  euclidean:  %.6f\n", res.Result.Euclidean)
	if n := res.Result.Neighborhood; n != nil {
		fmt.Fprintf(stdout, "  neighbours: %s shared (k=%d)\n", percent(*n), res.Result.NeighborhoodK)
	} else if req.ModelA == "" {
		printSkip("", "too few embeddings of this model in the set for neighbourhood preservation")
	}
	if s := res.Result.Semantic; s != nil {
		fmt.Fprintf(stdout, "  semantic:   %.6f\n", *s)
	}
	if res.Result.Refs > 0 {
		fmt.Fprintf(stdout, "  references: %d\n", res.Result.Refs)
	}
	return nil
}
