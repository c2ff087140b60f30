package scanner

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"kicomport/internal/config"
	"kicomport/internal/errs"
	"kicomport/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, dir string, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	zipPath := filepath.Join(dir, "upload.zip")
	require.NoError(t, os.WriteFile(zipPath, buf.Bytes(), 0644))
	return zipPath
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, map[string]string{
		"lib/LM358.kicad_sym":   sampleSymbol,
		"__MACOSX/.junk":        "ignored",
		"lib/.DS_Store":         "ignored",
		"mod/SOIC-8.kicad_mod":  sampleFootprint,
	})

	target := filepath.Join(dir, "work")
	e := NewExtractor(config.DefaultConfigLimits, &mocks.MockLogger{})
	require.NoError(t, e.Extract(zipPath, target))

	assert.FileExists(t, filepath.Join(target, "lib", "LM358.kicad_sym"))
	assert.FileExists(t, filepath.Join(target, "mod", "SOIC-8.kicad_mod"))
	assert.NoFileExists(t, filepath.Join(target, "__MACOSX", ".junk"))
	assert.NoFileExists(t, filepath.Join(target, "lib", ".DS_Store"))
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, map[string]string{
		"../evil.kicad_sym": "x",
	})

	target := filepath.Join(dir, "work")
	e := NewExtractor(config.DefaultConfigLimits, &mocks.MockLogger{})
	err := e.Extract(zipPath, target)
	require.Error(t, err)
	assert.NoDirExists(t, target)
}

func TestExtractFileCountLimit(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, map[string]string{
		"a.kicad_sym": "x",
		"b.kicad_sym": "x",
		"c.kicad_sym": "x",
	})

	limits := config.DefaultConfigLimits
	limits.MaxExtractFiles = 2
	e := NewExtractor(limits, &mocks.MockLogger{})

	err := e.Extract(zipPath, filepath.Join(dir, "work"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrResourceLimitExceeded)
}

func TestExtractTotalByteLimitCheckedIncrementally(t *testing.T) {
	dir := t.TempDir()
	big := bytes.Repeat([]byte("a"), 4096)
	zipPath := buildZip(t, dir, map[string]string{
		"one.kicad_sym": string(big),
		"two.kicad_sym": string(big),
	})

	limits := config.DefaultConfigLimits
	limits.MaxExtractBytes = 5000
	e := NewExtractor(limits, &mocks.MockLogger{})

	target := filepath.Join(dir, "work")
	err := e.Extract(zipPath, target)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrResourceLimitExceeded)
	// failed extraction leaves nothing behind
	assert.NoDirExists(t, target)
}

func TestExtractNonArchiveCopiesSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "LM358.kicad_sym")
	require.NoError(t, os.WriteFile(src, []byte(sampleSymbol), 0644))

	target := filepath.Join(dir, "work")
	e := NewExtractor(config.DefaultConfigLimits, &mocks.MockLogger{})
	require.NoError(t, e.Extract(src, target))
	assert.FileExists(t, filepath.Join(target, "LM358.kicad_sym"))
}
