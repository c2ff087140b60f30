// scanner/extract.go - Safe archive extraction with incremental limits
package scanner

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"kicomport/internal/config"
	"kicomport/internal/errs"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"

	gitignore "github.com/sabhiram/go-gitignore"
)

// junk archive members never worth extracting
var extractIgnorePatterns = []string{
	"__MACOSX/",
	".DS_Store",
	"._*",
	"Thumbs.db",
	"desktop.ini",
}

// Extractor materializes an uploaded archive (or single file) into a job
// work directory, enforcing byte/file-count/per-file limits incrementally so
// a hostile archive cannot exhaust disk before the check runs.
type Extractor struct {
	limits config.ConfigLimits
	ignore *gitignore.GitIgnore
	logger logger.Logger
}

// NewExtractor creates an extractor with the given limits.
func NewExtractor(limits config.ConfigLimits, logger logger.Logger) *Extractor {
	return &Extractor{
		limits: limits,
		ignore: gitignore.CompileIgnoreLines(extractIgnorePatterns...),
		logger: logger,
	}
}

// Extract unpacks storedPath into targetDir. Non-archive uploads are copied
// into targetDir as-is so the scanner sees a uniform directory tree. The
// target directory is removed on failure.
func (e *Extractor) Extract(storedPath, targetDir string) error {
	if err := os.RemoveAll(targetDir); err != nil {
		return fmt.Errorf("failed to clear work directory %s: %w", targetDir, err)
	}
	if err := utils.EnsureDir(targetDir); err != nil {
		return err
	}

	var err error
	if isZipFile(storedPath) {
		err = e.extractZip(storedPath, targetDir)
	} else {
		err = e.copySingle(storedPath, targetDir)
	}
	if err != nil {
		os.RemoveAll(targetDir)
		return err
	}
	return nil
}

func isZipFile(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	r.Close()
	return true
}

func (e *Extractor) copySingle(storedPath, targetDir string) error {
	info, err := os.Stat(storedPath)
	if err != nil {
		return fmt.Errorf("failed to stat upload %s: %w", storedPath, err)
	}
	if e.limits.MaxFileBytes > 0 && info.Size() > e.limits.MaxFileBytes {
		return fmt.Errorf("%w: upload of %d bytes exceeds per-file limit", errs.ErrResourceLimitExceeded, info.Size())
	}
	dest := filepath.Join(targetDir, utils.SanitizeBaseName(filepath.Base(storedPath)))
	return utils.AtomicCopyFile(storedPath, dest)
}

func (e *Extractor) extractZip(zipPath, targetDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	fileCount := 0
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if e.ignore.MatchesPath(f.Name) {
			continue
		}
		fileCount++
	}
	if fileCount == 0 {
		return fmt.Errorf("archive %s contains no files", filepath.Base(zipPath))
	}
	if e.limits.MaxExtractFiles > 0 && fileCount > e.limits.MaxExtractFiles {
		return fmt.Errorf("%w: archive contains %d files (limit %d)",
			errs.ErrResourceLimitExceeded, fileCount, e.limits.MaxExtractFiles)
	}

	var writtenTotal int64
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if e.ignore.MatchesPath(f.Name) {
			continue
		}
		written, err := e.extractMember(f, targetDir, writtenTotal)
		if err != nil {
			return err
		}
		writtenTotal += written
	}

	e.logger.Debug("extracted %d files (%d bytes) from %s", fileCount, writtenTotal, zipPath)
	return nil
}

// extractMember writes one member, counting bytes against both the per-file
// and the running total limit while streaming. Declared sizes in the zip
// header are not trusted.
func (e *Extractor) extractMember(f *zip.File, targetDir string, writtenTotal int64) (int64, error) {
	member, err := safeMemberPath(f.Name, targetDir)
	if err != nil {
		return 0, err
	}

	dest := filepath.Join(targetDir, member)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	src, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open archive member %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	var writtenFile int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			writtenFile += int64(n)
			if e.limits.MaxFileBytes > 0 && writtenFile > e.limits.MaxFileBytes {
				return writtenFile, fmt.Errorf("%w: member %s exceeds per-file byte limit",
					errs.ErrResourceLimitExceeded, f.Name)
			}
			if e.limits.MaxExtractBytes > 0 && writtenTotal+writtenFile > e.limits.MaxExtractBytes {
				return writtenFile, fmt.Errorf("%w: total extracted bytes exceed limit",
					errs.ErrResourceLimitExceeded)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return writtenFile, fmt.Errorf("failed to write %s: %w", dest, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return writtenFile, fmt.Errorf("failed to read archive member %s: %w", f.Name, readErr)
		}
	}
	return writtenFile, nil
}

// safeMemberPath rejects absolute paths and traversal out of the target dir.
func safeMemberPath(name, targetDir string) (string, error) {
	normalized := filepath.ToSlash(name)
	normalized = strings.TrimPrefix(normalized, "/")
	cleaned := filepath.Clean(filepath.FromSlash(normalized))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	resolved := filepath.Join(targetDir, cleaned)
	if !strings.HasPrefix(resolved, filepath.Clean(targetDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	return cleaned, nil
}
