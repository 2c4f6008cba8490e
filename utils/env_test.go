package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("# signer\nCLMM_TEST_SIGNER=\"abc\"\nCLMM_TEST_KEEP=file\n"), 0o600))

	t.Setenv("CLMM_TEST_KEEP", "env")
	t.Setenv("CLMM_TEST_SIGNER", "")
	require.NoError(t, os.Unsetenv("CLMM_TEST_SIGNER"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "abc", os.Getenv("CLMM_TEST_SIGNER"))
	assert.Equal(t, "env", os.Getenv("CLMM_TEST_KEEP"))
}

func TestFindEnvFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	assert.Equal(t, "", findEnvFile(nested, 3))

	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("X=1\n"), 0o600))
	assert.Equal(t, filepath.Join(root, ".env"), findEnvFile(nested, 3))
	assert.Equal(t, "", findEnvFile(nested, 2))
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), ".env")))
}
