package embeddings

import (
	"context"
	"strings"

	"github.com/kamusis/embr/internal/errs"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIProvider struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

// NewOpenAI constructs an OpenAI-compatible embeddings provider. BaseURL may
// point at any server speaking the /embeddings API.
func NewOpenAI(cfg *Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, errs.New(errs.CodeRepoGenerateFailure,
			"embeddings model is not configured (embr config set embeddings.model <name>)")
	}
	if cfg.APIKey == "" {
		return nil, errs.New(errs.CodeRepoGenerateFailure,
			"embeddings API key is not configured (set EMBR_EMBEDDINGS_API_KEY)")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	return &openAIProvider{
		client:     openaisdk.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (p *openAIProvider) ModelID() string {
	return p.model
}

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.CodeRepoGenerateFailure, "cannot embed empty text")
	}
	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, errs.Errorf(errs.CodeRepoGenerateFailure, "embeddings request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errs.New(errs.CodeRepoGenerateFailure, "embeddings response missing embedding")
	}
	return resp.Data[0].Embedding, nil
}
