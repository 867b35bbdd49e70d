package embeddings

import (
	"os"

	"github.com/kamusis/embr/internal/config"
)

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}

func configFor(provider, model string) config.EmbeddingsConfig {
	return config.EmbeddingsConfig{Provider: provider, Model: model}
}
