package importer

import (
	"os"
	"path/filepath"
	"testing"

	"kicomport/internal/config"
	"kicomport/internal/model"
	"kicomport/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceSelections_RenameForConsistency(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src", "Weird Name (v2).kicad_mod")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("(footprint)"), 0644))

	apply := config.DefaultConfigApply
	apply.RenameSelections = true
	o := NewOrganizer(filepath.Join(base, "libs"), apply, &mocks.MockLogger{})

	fp := &model.CandidateFile{
		ID: "c1", ComponentKey: "ne555", Kind: model.KindFootprint,
		RelPath: "Weird Name (v2).kicad_mod", AbsPath: src,
	}
	job := &model.Job{
		ID:         "job-1",
		Candidates: []*model.CandidateFile{fp},
		Plan: &model.Plan{Selections: []model.Selection{
			{ComponentKey: "ne555", Kind: model.KindFootprint, CandidateID: "c1"},
		}},
	}

	placed, err := o.PlaceSelections(job)
	require.NoError(t, err)
	require.Len(t, placed, 1)

	expected := filepath.Join(base, "libs", "footprints", "KiComport.pretty", "ne555.kicad_mod")
	assert.Equal(t, expected, placed[0].DestPath)
	assert.Equal(t, expected, fp.InstalledPath)
	assert.FileExists(t, expected)
}

func TestPlaceSelections_CollisionGetsCopySuffix(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src", "ne555.kicad_sym")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("(kicad_symbol_lib)"), 0644))

	existing := filepath.Join(base, "libs", "symbols", "ne555.kicad_sym")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0755))
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	o := NewOrganizer(filepath.Join(base, "libs"), config.DefaultConfigApply, &mocks.MockLogger{})

	sym := &model.CandidateFile{
		ID: "c1", ComponentKey: "ne555", Kind: model.KindSymbol,
		RelPath: "ne555.kicad_sym", AbsPath: src,
	}
	job := &model.Job{
		ID:         "job-1",
		Candidates: []*model.CandidateFile{sym},
		Plan: &model.Plan{Selections: []model.Selection{
			{ComponentKey: "ne555", Kind: model.KindSymbol, CandidateID: "c1"},
		}},
	}

	placed, err := o.PlaceSelections(job)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "libs", "symbols", "ne555_copy1.kicad_sym"), placed[0].DestPath)
	// pre-existing file untouched
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestPlaceSelections_UnknownCandidate(t *testing.T) {
	o := NewOrganizer(t.TempDir(), config.DefaultConfigApply, &mocks.MockLogger{})

	job := &model.Job{
		ID: "job-1",
		Plan: &model.Plan{Selections: []model.Selection{
			{ComponentKey: "ne555", Kind: model.KindSymbol, CandidateID: "ghost"},
		}},
	}
	_, err := o.PlaceSelections(job)
	assert.Error(t, err)
}
