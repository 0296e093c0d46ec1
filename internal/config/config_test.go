package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Greater(t, cfg.Workers, 0)
	assert.Equal(t, "metadata/mask_IC.nii.gz", cfg.Extract.MaskFile)
	assert.Equal(t, "features_42_comps", cfg.Extract.RSOutputFile)
	assert.Equal(t, "corrupted_files.txt", cfg.Extract.FailureLog)
	assert.Equal(t, "voxel", cfg.Extract.Standardize)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "gica.yaml")

	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.Extract.StartIdx = 7
	cfg.Extract.Trim = []int{0, 2, 4}
	cfg.Register.UseRegisteredAffine = true
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gica.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extract:\n  rsDataDir: /data/rs\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/rs", cfg.Extract.RSDataDir)
	assert.Equal(t, "out-features", cfg.Extract.OutDir)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gica.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [not a number\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "gica.yaml")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(yamlPath, []byte("workers: 2\nextract:\n  outDir: from-yaml\n  rsDataDir: from-yaml\n"), 0644))
	require.NoError(t, os.WriteFile(envPath, []byte("GICA_OUT_DIR=from-dotenv\n"), 0644))
	t.Setenv("GICA_OUT_DIR", "")
	os.Unsetenv("GICA_OUT_DIR")
	t.Setenv("GICA_WORKERS", "5")
	t.Setenv("DATA", "from-data")

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "from-dotenv", cfg.Extract.OutDir)
	assert.Equal(t, "from-data", cfg.Extract.RSDataDir)
}

func TestApplyEnvInvalidNumber(t *testing.T) {
	t.Setenv("GICA_START_IDX", "three")
	assert.Error(t, ApplyEnv(DefaultConfig()))
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()
	var out bytes.Buffer

	existing := filepath.Join(base, "existing")
	require.NoError(t, os.Mkdir(existing, 0755))
	require.NoError(t, EnsureDir(existing, strings.NewReader(""), &out, false))
	assert.Empty(t, out.String())

	created := filepath.Join(base, "created")
	require.NoError(t, EnsureDir(created, strings.NewReader("y\n"), &out, false))
	assert.DirExists(t, created)
	assert.Contains(t, out.String(), "(y/n)")

	declined := filepath.Join(base, "declined")
	err := EnsureDir(declined, strings.NewReader("n\n"), &out, false)
	assert.True(t, errors.Is(err, errs.ErrAborted))
	assert.NoDirExists(t, declined)

	assumed := filepath.Join(base, "assumed")
	require.NoError(t, EnsureDir(assumed, strings.NewReader(""), &out, true))
	assert.DirExists(t, assumed)
}
