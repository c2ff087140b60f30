// importer/organizer.go - Canonical library layout placement
package importer

import (
	"fmt"
	"path/filepath"
	"strings"

	"kicomport/internal/config"
	"kicomport/internal/model"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"
)

// PlacedFile is one candidate copied into the canonical layout.
type PlacedFile struct {
	Candidate *model.CandidateFile
	DestPath  string
}

// Organizer copies selected candidate files into the shared library layout:
//
//	<libs>/symbols/<file>.kicad_sym
//	<libs>/footprints/<prefix>.pretty/<file>.kicad_mod
//	<libs>/models/<prefix>/<file>
type Organizer interface {
	PlaceSelections(job *model.Job) ([]PlacedFile, error)
	// FootprintDir is the .pretty directory footprint table entries point at.
	FootprintDir() string
}

type organizer struct {
	libsDir string
	apply   config.ConfigApply
	logger  logger.Logger
}

// NewOrganizer creates the organizer rooted at libsDir.
func NewOrganizer(libsDir string, apply config.ConfigApply, logger logger.Logger) Organizer {
	return &organizer{libsDir: libsDir, apply: apply, logger: logger}
}

func (o *organizer) FootprintDir() string {
	prefix := utils.SanitizeSegment(o.apply.LibraryPrefix)
	return filepath.Join(o.libsDir, "footprints", prefix+".pretty")
}

// PlaceSelections copies every selected candidate. Placement is
// all-or-nothing for the caller: on error the already-placed files are
// returned so they can be reported, but the operation counts as failed.
func (o *organizer) PlaceSelections(job *model.Job) ([]PlacedFile, error) {
	byID := make(map[string]*model.CandidateFile, len(job.Candidates))
	for _, c := range job.Candidates {
		byID[c.ID] = c
	}

	var placed []PlacedFile
	for _, sel := range job.Plan.Selections {
		candidate, ok := byID[sel.CandidateID]
		if !ok {
			return placed, fmt.Errorf("selection %s/%s references unknown candidate %s",
				sel.ComponentKey, sel.Kind, sel.CandidateID)
		}

		dest, err := o.destinationFor(candidate)
		if err != nil {
			return placed, err
		}
		dest, err = utils.NextAvailablePath(dest)
		if err != nil {
			return placed, err
		}
		if err := utils.AtomicCopyFile(candidate.AbsPath, dest); err != nil {
			return placed, fmt.Errorf("failed to place %s: %w", candidate.RelPath, err)
		}

		candidate.InstalledPath = dest
		placed = append(placed, PlacedFile{Candidate: candidate, DestPath: dest})
		o.logger.Info("placed %s %s at %s", candidate.Kind, candidate.RelPath, dest)
	}
	return placed, nil
}

func (o *organizer) destinationFor(candidate *model.CandidateFile) (string, error) {
	fileName := filepath.Base(candidate.RelPath)
	if o.apply.RenameSelections {
		base := utils.SanitizeBaseName(candidate.ComponentKey)
		if base != "" {
			fileName = base + strings.ToLower(filepath.Ext(fileName))
		}
	}

	prefix := utils.SanitizeSegment(o.apply.LibraryPrefix)
	switch candidate.Kind {
	case model.KindSymbol:
		return filepath.Join(o.libsDir, "symbols", fileName), nil
	case model.KindFootprint:
		return filepath.Join(o.FootprintDir(), fileName), nil
	case model.KindModel:
		return filepath.Join(o.libsDir, "models", prefix, fileName), nil
	}
	return "", fmt.Errorf("unknown candidate kind %s", candidate.Kind)
}
