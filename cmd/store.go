package cmd

import (
	"fmt"
	"strings"

	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/object"
	"github.com/kamusis/embr/internal/repo"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store <source>",
	Short: "Store an embedding for a file",
	Long: `Store an embedding as the current version of <source> for a model in the
active set.

The embedding comes from --embedding (a .npy, .json or raw float32 .bin file;
raw files need --dims) or, with --generate, from the configured embeddings
provider reading <source> as text.

Examples:
  embr store --embedding doc.npy --model bge-m3 docs/intro.md
  embr store --embedding doc.bin --dims 768 docs/intro.md
  embr store --generate --attr chunk=0 docs/intro.md`,
	Args: cobra.ExactArgs(1),
	RunE: runStore,
}

var (
	flagStoreEmbedding string
	flagStoreDims      int
	flagStoreModel     string
	flagStoreGenerate  bool
	flagStoreAttrs     []string
)

func init() {
	storeCmd.Flags().StringVar(&flagStoreEmbedding, "embedding", "", "Embedding file (.npy, .json, .bin/.raw/.f32)")
	storeCmd.Flags().IntVar(&flagStoreDims, "dims", 0, "Dimensions of a raw embedding file")
	storeCmd.Flags().StringVar(&flagStoreModel, "model", "", "Model name (default: core.default_model)")
	storeCmd.Flags().BoolVar(&flagStoreGenerate, "generate", false, "Generate the embedding with the configured provider")
	storeCmd.Flags().StringArrayVar(&flagStoreAttrs, "attr", nil, "Metadata attribute key=value (repeatable)")
	storeCmd.MarkFlagsMutuallyExclusive("embedding", "generate")
	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	attrs, err := parseAttrs(flagStoreAttrs)
	if err != nil {
		return err
	}

	modelName := flagStoreModel
	var emb *embedding.Embedding
	switch {
	case flagStoreGenerate:
		var generatedBy string
		if emb, generatedBy, err = r.Generate(cmd.Context(), args[0]); err != nil {
			return err
		}
		if modelName == "" {
			modelName = generatedBy
		}
	case flagStoreEmbedding != "":
		if emb, err = embedding.ReadFile(flagStoreEmbedding, flagStoreDims); err != nil {
			return err
		}
	default:
		return errs.New(errs.CodeInputInvalid, "one of --embedding or --generate is required")
	}

	res, err := r.Store(repo.StoreRequest{
		Source:     args[0],
		Model:      modelName,
		Embedding:  emb,
		Attributes: attrs,
	})
	if err != nil {
		return err
	}
	printOK(res.Source, fmt.Sprintf("stored %s (model %s, %d dims, set %s)", res.Hash, res.Model, emb.Dims(), res.Set))
	if !res.Created {
		printInfo(res.Source, "object already in pool; reused")
	}
	if res.Parent == res.Hash {
		printSkip(res.Source, "unchanged from the current version")
	} else if res.Parent != "" {
		printInfo(res.Source, "previous "+shortHash(res.Parent))
	}
	return nil
}

func parseAttrs(raw []string) (object.Attributes, error) {
	var attrs object.Attributes
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, errs.Errorf(errs.CodeInputInvalid, "invalid --attr %q (want key=value)", kv)
		}
		attrs.Set(strings.TrimSpace(k), v)
	}
	return attrs, nil
}
