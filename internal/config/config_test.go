package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigLimits.MaxExtractFiles, cfg.Limits.MaxExtractFiles)
	assert.Equal(t, 0.6, cfg.Scoring.HeuristicWeight)
	assert.False(t, cfg.Advisory.Enabled)
}

func TestLoadAppConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadAppConfig("/nonexistent/kicomport.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigPaths.Root, cfg.Paths.Root)
}

func TestLoadAppConfigOverrides(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	content := `
[limits]
maxExtractFiles = 500

[scoring]
consistencyBonus = 0.2

[advisory]
enabled = true
model = "llama3"
`
	configPath := filepath.Join(tempDir, "kicomport.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadAppConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Limits.MaxExtractFiles)
	assert.Equal(t, 0.2, cfg.Scoring.ConsistencyBonus)
	assert.True(t, cfg.Advisory.Enabled)
	// untouched sections keep defaults
	assert.Equal(t, DefaultConfigLimits.MaxExtractBytes, cfg.Limits.MaxExtractBytes)
}

func TestLoadAppConfigRejectsAdvisoryWithoutModel(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "kicomport.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[advisory]\nenabled = true\n"), 0644))

	_, err = LoadAppConfig(configPath)
	require.Error(t, err)
}
