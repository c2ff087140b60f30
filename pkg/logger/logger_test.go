package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logger-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	log, err := NewLogger(tempDir, "debug", "kicomport")
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Debug("debug message %d", 1)
	log.Info("info message %s", "x")
	log.Warn("warn message")
	log.Error("error message: %v", os.ErrNotExist)

	entries, err := filepath.Glob(filepath.Join(tempDir, "kicomport-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestNewLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logger-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	log, err := NewLogger(tempDir, "verbose", "kicomport")
	require.NoError(t, err)
	require.NotNil(t, log)
	log.Info("still works")
}
