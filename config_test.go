package pdfxref

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2048, cfg.EOFLookupRange)
	assert.Equal(t, 512, cfg.MaxBruteForceMB)
	assert.Equal(t, 1024, cfg.HeaderSearchSize)
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("EOF_LOOKUP_RANGE", "4096")
	cfg := DefaultConfig().ApplyEnv()
	assert.Equal(t, 4096, cfg.EOFLookupRange)
}

func TestConfig_ApplyEnv_InvalidValueIgnored(t *testing.T) {
	t.Setenv("EOF_LOOKUP_RANGE", "not-a-number")
	cfg := DefaultConfig().ApplyEnv()
	assert.Equal(t, 2048, cfg.EOFLookupRange, "invalid value must be ignored, default retained")
}

func TestConfig_ApplyEnv_NegativeValueIgnored(t *testing.T) {
	t.Setenv("EOF_LOOKUP_RANGE", "-5")
	cfg := DefaultConfig().ApplyEnv()
	assert.Equal(t, 2048, cfg.EOFLookupRange)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfxref.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eof_lookup_range: 2048\nmax_brute_force_mb: 64\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.EOFLookupRange)
	assert.Equal(t, 64, cfg.MaxBruteForceMB)
	assert.Equal(t, 1024, cfg.HeaderSearchSize, "unset keys keep the default")
}

func TestLoadConfigFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdfxref.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eof_lookup_range: 2048\n"), 0o644))
	t.Setenv("EOF_LOOKUP_RANGE", "8192")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8192, cfg.EOFLookupRange, "env var must win over file value")
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
