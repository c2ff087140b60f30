// scanner/scanner.go - Candidate file scanner
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"kicomport/internal/config"
	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"
)

var (
	symbolExts    = map[string]bool{".kicad_sym": true}
	footprintExts = map[string]bool{".kicad_mod": true}
	modelExts     = map[string]bool{".step": true, ".stp": true, ".wrl": true, ".obj": true}
)

// CandidateScanner walks an extracted job directory and classifies files into
// candidates with lightweight metadata. For identical input bytes and limits
// the output is identical: the walk is lexical and ids derive from content.
type CandidateScanner struct {
	limits config.ConfigLimits
	logger logger.Logger
}

// NewCandidateScanner creates a scanner with the given limits.
func NewCandidateScanner(limits config.ConfigLimits, logger logger.Logger) *CandidateScanner {
	return &CandidateScanner{limits: limits, logger: logger}
}

// Scan enumerates workDir recursively. Parse failures downgrade metadata to
// unknown and emit a warning; limit violations abort the whole scan with
// ErrResourceLimitExceeded and no candidate set.
func (s *CandidateScanner) Scan(workDir string) ([]*model.CandidateFile, []string, error) {
	var candidates []*model.CandidateFile
	var warnings []string
	var totalBytes int64
	fileCount := 0

	err := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		fileCount++
		if s.limits.MaxExtractFiles > 0 && fileCount > s.limits.MaxExtractFiles {
			return fmt.Errorf("%w: more than %d files in job directory",
				errs.ErrResourceLimitExceeded, s.limits.MaxExtractFiles)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if s.limits.MaxFileBytes > 0 && info.Size() > s.limits.MaxFileBytes {
			return fmt.Errorf("%w: %s exceeds per-file byte limit",
				errs.ErrResourceLimitExceeded, d.Name())
		}
		totalBytes += info.Size()
		if s.limits.MaxExtractBytes > 0 && totalBytes > s.limits.MaxExtractBytes {
			return fmt.Errorf("%w: job directory exceeds total byte limit",
				errs.ErrResourceLimitExceeded)
		}

		kind, ok := classify(path)
		if !ok {
			return nil
		}

		relPath, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}

		candidate, warning := s.buildCandidate(kind, path, relPath, info.Size())
		if warning != "" {
			warnings = append(warnings, warning)
		}
		candidates = append(candidates, candidate)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("scan found %d candidates in %s (%d files walked)", len(candidates), workDir, fileCount)
	return candidates, warnings, nil
}

// classify maps a file path to a candidate kind by extension. Footprints may
// also live inside .pretty directories and models inside .3dshapes, but both
// still carry their own extensions, so extension alone decides.
func classify(path string) (model.CandidateKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case symbolExts[ext]:
		return model.KindSymbol, true
	case footprintExts[ext]:
		return model.KindFootprint, true
	case modelExts[ext]:
		return model.KindModel, true
	}
	return "", false
}

func (s *CandidateScanner) buildCandidate(kind model.CandidateKind, absPath, relPath string, size int64) (*model.CandidateFile, string) {
	stem := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	candidate := &model.CandidateFile{
		Kind:         kind,
		RelPath:      filepath.ToSlash(relPath),
		AbsPath:      absPath,
		SizeBytes:    size,
		Name:         stem,
		ComponentKey: componentKey(stem),
		PinCount:     -1,
		PadCount:     -1,
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		candidate.ID = candidateID(kind, relPath, "")
		candidate.Description = model.MetadataUnknown
		return candidate, fmt.Sprintf("failed to read %s, metadata unknown: %v", relPath, err)
	}
	candidate.ContentHash = utils.HashBytes(data)
	candidate.ID = candidateID(kind, relPath, candidate.ContentHash)

	var warning string
	switch kind {
	case model.KindSymbol:
		text := string(data)
		if !strings.Contains(text, "(") {
			candidate.Description = model.MetadataUnknown
			warning = fmt.Sprintf("symbol %s is not an s-expression file, metadata unknown", relPath)
			break
		}
		candidate.PinCount = countNodes(text, "pin")
		candidate.Description = extractDescription(text)
	case model.KindFootprint:
		text := string(data)
		if !strings.Contains(text, "(") {
			candidate.Description = model.MetadataUnknown
			warning = fmt.Sprintf("footprint %s is not an s-expression file, metadata unknown", relPath)
			break
		}
		candidate.PadCount = countNodes(text, "pad")
		candidate.Description = extractDescription(text)
	case model.KindModel:
		// 3D models get no structural parse; the extension is the metadata
		candidate.Description = strings.ToLower(filepath.Ext(relPath))
	}
	return candidate, warning
}

// componentKey groups candidates of different kinds by shared base name.
func componentKey(stem string) string {
	return strings.ToLower(utils.SanitizeBaseName(stem))
}

// candidateID is deterministic for identical input bytes and paths.
func candidateID(kind model.CandidateKind, relPath, contentHash string) string {
	seed := string(kind) + "|" + filepath.ToSlash(relPath) + "|" + contentHash
	return "c" + utils.HashBytes([]byte(seed))[:16]
}
