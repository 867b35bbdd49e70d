package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv_NotExist(t *testing.T) {
	m, err := LoadDotEnv(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nA=1\nB=\"two\"\n"), 0o600))

	m, err := LoadDotEnv(dir)
	require.NoError(t, err)
	assert.Equal(t, "1", m["A"])
	assert.Equal(t, "two", m["B"])
}

func TestGetConfigValue_EnvOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EMBR_TEST_K=fromdotenv\n"), 0o600))

	v, err := GetConfigValue(dir, "EMBR_TEST_K")
	require.NoError(t, err)
	assert.Equal(t, "fromdotenv", v)

	t.Setenv("EMBR_TEST_K", "fromenv")
	v, err = GetConfigValue(dir, "EMBR_TEST_K")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", v)
}

func TestEnsureDotEnvTemplate_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDotEnvTemplate(dir))
	info, err := os.Stat(DotEnvPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(DotEnvPath(dir), []byte("X=1\n"), 0o600))
	require.NoError(t, EnsureDotEnvTemplate(dir))
	data, err := os.ReadFile(DotEnvPath(dir))
	require.NoError(t, err)
	assert.Equal(t, "X=1\n", string(data))
}
