package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kamusis/embr/internal/errs"
)

// DotEnvPath returns the path of the repository's dotenv file.
func DotEnvPath(repoDir string) string {
	return filepath.Join(repoDir, ".env")
}

// LoadDotEnv reads the repository's .env. A missing file is empty.
func LoadDotEnv(repoDir string) (map[string]string, error) {
	p := DotEnvPath(repoDir)
	m, err := godotenv.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, errs.Errorf(errs.CodeConfigReadFailure, "cannot read dotenv file %s: %w", p, err)
	}
	return m, nil
}

// GetConfigValue returns the effective value for key, using process
// environment variables first and falling back to the repository's .env.
func GetConfigValue(repoDir, key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv(repoDir)
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate creates the repository's .env if it does not exist,
// listing the secrets embr reads with empty values.
func EnsureDotEnvTemplate(repoDir string) error {
	p := DotEnvPath(repoDir)
	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errs.Errorf(errs.CodeConfigWriteFailure, "cannot stat dotenv file %s: %w", p, err)
	}

	body := "" +
		"EMBR_EMBEDDINGS_API_KEY=\n" +
		"EMBR_REMOTE_ACCESS_KEY=\n" +
		"EMBR_REMOTE_SECRET_KEY=\n"

	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		return errs.Errorf(errs.CodeConfigWriteFailure, "cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
