// Package embeddings generates embeddings from text through an external
// provider, for store --generate.
package embeddings

import (
	"context"

	"github.com/kamusis/embr/internal/config"
	"github.com/kamusis/embr/internal/errs"
)

// Provider embeds text into a fixed-length vector.
//
// Implementations must be deterministic for the same input text and model.
type Provider interface {
	ModelID() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// LoadConfig resolves the provider settings from the repository config and
// the API key from the environment first, then the repository's .env.
func LoadConfig(repoDir string, cfg config.EmbeddingsConfig) (*Config, error) {
	apiKey, err := config.GetConfigValue(repoDir, "EMBR_EMBEDDINGS_API_KEY")
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		if apiKey, err = config.GetConfigValue(repoDir, "OPENAI_API_KEY"); err != nil {
			return nil, err
		}
	}
	return &Config{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		APIKey:     apiKey,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
	}, nil
}

// NewFromConfig returns an embeddings provider.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, errs.New(errs.CodeRepoGenerateFailure, "embeddings config is nil")
	}
	if cfg.Provider == "" {
		return nil, errs.New(errs.CodeRepoGenerateFailure,
			"embeddings provider is not configured (embr config set embeddings.provider openai)")
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, errs.Errorf(errs.CodeRepoGenerateFailure, "unsupported embeddings provider: %s", cfg.Provider)
	}
}
