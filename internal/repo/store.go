package repo

import (
	"context"
	"os"

	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/embeddings"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/ledger"
	"github.com/kamusis/embr/internal/object"
)

// StoreRequest asks to record an embedding for a source.
type StoreRequest struct {
	// Source is a path as the user typed it.
	Source string
	// Model defaults to core.default_model.
	Model      string
	Embedding  *embedding.Embedding
	Attributes object.Attributes
}

// StoreResult describes a completed store.
type StoreResult struct {
	Source string
	Model  string
	Set    string
	Hash   string
	Parent string
	// Created is false when the object already existed in the pool.
	Created bool
}

// Store writes the object (if new) and then records it as the current
// embedding of (source, model) in the active set. The object is durable
// before the ledger references it.
func (r *Repo) Store(req StoreRequest) (*StoreResult, error) {
	if req.Embedding == nil || req.Embedding.Dims() == 0 {
		return nil, errs.New(errs.CodeEmbeddingInvalidDims, "Invalid dimensions: embedding is empty")
	}
	source, err := r.ResolveSource(req.Source)
	if err != nil {
		return nil, err
	}
	modelName := req.Model
	if modelName == "" {
		modelName = r.Config.Core.DefaultModel
	}
	if modelName == "" {
		return nil, errs.New(errs.CodeRepoModelRequired,
			"no model given; pass --model or set core.default_model", errs.FieldSource(source))
	}
	reg, err := r.models()
	if err != nil {
		return nil, err
	}
	emb := req.Embedding
	if err := reg.Validate(modelName, emb.Dims()); err != nil {
		return nil, err
	}
	if m, ok := reg.Get(modelName); ok && m.Normalize {
		emb = embedding.New(embedding.NormalizeL2(emb.Values), emb.DType)
	} else if !ok {
		r.log.Debug("storing under unregistered model", "model", modelName)
	}
	if err := embedding.CheckFinite(emb.Values); err != nil {
		r.log.Warn("storing embedding with non-finite values; it cannot be compared", "source", source, "error", err)
	}

	set, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	parent, _, err := current(l, source, modelName)
	if err != nil {
		return nil, err
	}
	hash, created, err := r.Objects.Put(emb, object.PutInfo{
		Source:     source,
		Model:      modelName,
		Parent:     parent,
		Attributes: req.Attributes,
	})
	if err != nil {
		return nil, err
	}
	entry, err := l.Record(source, modelName, hash, ledger.ActionStore)
	if err != nil {
		return nil, err
	}
	return &StoreResult{
		Source:  source,
		Model:   modelName,
		Set:     set,
		Hash:    hash,
		Parent:  entry.Parent,
		Created: created,
	}, nil
}

// Generate embeds the text of a source file with the configured provider.
// It returns the embedding and the provider's model name.
func (r *Repo) Generate(ctx context.Context, path string) (*embedding.Embedding, string, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errs.Errorf(errs.CodeRepoGenerateFailure, "cannot read %s: %w", path, err)
	}
	cfg, err := embeddings.LoadConfig(r.Dir, r.Config.Embeddings)
	if err != nil {
		return nil, "", err
	}
	p, err := embeddings.NewFromConfig(cfg)
	if err != nil {
		return nil, "", err
	}
	values, err := p.Embed(ctx, string(text))
	if err != nil {
		return nil, "", err
	}
	r.log.Debug("embedding generated", "path", path, "model", p.ModelID(), "dims", len(values))
	return embedding.New(values, embedding.Float32), p.ModelID(), nil
}

func current(l *ledger.Ledger, source, model string) (string, bool, error) {
	idx, err := l.ReadIndex()
	if err != nil {
		return "", false, err
	}
	h, ok := idx.Get(source, model)
	return h, ok, nil
}
