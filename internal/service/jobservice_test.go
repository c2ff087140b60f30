package service

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"kicomport/internal/config"
	"kicomport/internal/database"
	"kicomport/internal/errs"
	"kicomport/internal/importer"
	"kicomport/internal/model"
	"kicomport/internal/planner"
	"kicomport/internal/repository"
	"kicomport/internal/scanner"
	"kicomport/internal/scorer"
	"kicomport/internal/tables"
	"kicomport/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSymbol = `(kicad_symbol_lib (version 20211014)
  (symbol "NE555" (descr "Single precision timer")
    (pin passive line (at 0 0 0)) (pin passive line (at 0 2 0))
    (pin passive line (at 0 4 0)) (pin passive line (at 0 6 0))
    (pin passive line (at 0 8 0)) (pin passive line (at 2 0 0))
    (pin passive line (at 2 2 0)) (pin passive line (at 2 4 0))))
`

const sampleFootprint = `(footprint "NE555_SOIC-8" (descr "SOIC-8 package")
  (pad "1" smd rect) (pad "2" smd rect) (pad "3" smd rect) (pad "4" smd rect)
  (pad "5" smd rect) (pad "6" smd rect) (pad "7" smd rect) (pad "8" smd rect))
`

func buildArchive(t *testing.T, members map[string]string) []byte {
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
	return buf.Bytes()
}

func newService(t *testing.T) (JobService, config.AppConfig) {
	t.Helper()
	base := t.TempDir()

	cfg := config.DefaultAppConfig
	cfg.Paths.Root = filepath.Join(base, "root")
	cfg.Paths.Libs = filepath.Join(base, "root", "libs")
	cfg.Paths.Incoming = filepath.Join(base, "incoming")
	cfg.Paths.Work = filepath.Join(base, "work")
	cfg.Paths.Backup = filepath.Join(base, "backup")
	cfg.Paths.Data = filepath.Join(base, "data")

	log := &mocks.MockLogger{}

	db := database.NewSQLiteManager(config.DefaultDatabaseConfig(cfg.Paths.Data), log)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	jobs, err := repository.NewJobStore(filepath.Join(cfg.Paths.Data, "jobs"), log)
	require.NoError(t, err)
	t.Cleanup(func() { jobs.Close() })

	backups, err := repository.NewBackupRepository(db, cfg.Paths.Backup, log)
	require.NoError(t, err)
	audit := repository.NewAuditRepository(db, log)
	feedback := repository.NewFeedbackRepository(db, log)

	candidateScorer := scorer.NewCandidateScorer(cfg.Scoring, cfg.Advisory, nil, feedback, log)
	editor := tables.NewTableEditor(log)
	organizer := importer.NewOrganizer(cfg.Paths.Libs, cfg.Apply, log)
	engine := importer.NewApplyEngine(cfg, editor, organizer, importer.NewTableLockManager(),
		jobs, backups, audit, feedback, log)

	svc := NewJobService(cfg, jobs, audit,
		scanner.NewExtractor(cfg.Limits, log),
		scanner.NewCandidateScanner(cfg.Limits, log),
		candidateScorer, planner.NewPlanBuilder(log), engine, log)
	return svc, cfg
}

func TestUpload_DedupByMD5(t *testing.T) {
	svc, cfg := newService(t)
	archive := buildArchive(t, map[string]string{"NE555.kicad_sym": sampleSymbol})

	first, err := svc.Upload(context.Background(), "parts.zip", archive)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, first.Status)
	assert.FileExists(t, first.SourceRef)
	assert.Equal(t, filepath.Join(cfg.Paths.Work, first.ID), first.WorkDir)

	second, err := svc.Upload(context.Background(), "parts-again.zip", archive)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpload_SizeLimit(t *testing.T) {
	svc, _ := newService(t)
	content := bytes.Repeat([]byte("a"), int(config.DefaultConfigLimits.MaxUploadBytes)+1)
	_, err := svc.Upload(context.Background(), "huge.zip", content)
	assert.ErrorIs(t, err, errs.ErrResourceLimitExceeded)
}

func TestAnalyze_ProducesPlan(t *testing.T) {
	svc, _ := newService(t)
	archive := buildArchive(t, map[string]string{
		"NE555.kicad_sym":   sampleSymbol,
		"NE555.kicad_mod":   sampleFootprint,
		"models/NE555.step": "solid model",
		"notes/readme.txt":  "ignored",
	})

	job, err := svc.Upload(context.Background(), "ne555.zip", archive)
	require.NoError(t, err)

	job, err = svc.Analyze(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPlanned, job.Status)
	assert.Len(t, job.Candidates, 3)
	require.NotNil(t, job.Plan)
	assert.True(t, job.Plan.Complete)
	assert.Len(t, job.Plan.Selections, 3)

	for _, c := range job.Candidates {
		assert.GreaterOrEqual(t, c.CombinedScore, 0.0)
		assert.LessOrEqual(t, c.CombinedScore, 1.0)
	}

	plan, err := svc.GetPlan(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Plan.Selections, plan.Selections)
}

func TestAnalyze_NoCandidates(t *testing.T) {
	svc, _ := newService(t)
	archive := buildArchive(t, map[string]string{"readme.txt": "nothing useful"})

	job, err := svc.Upload(context.Background(), "junk.zip", archive)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), job.ID)
	assert.ErrorIs(t, err, errs.ErrNoCandidate)

	job, err = svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Empty(t, job.Candidates)
}

func TestAnalyze_FailureFromPlannedMarksFailed(t *testing.T) {
	svc, _ := newService(t)
	archive := buildArchive(t, map[string]string{
		"NE555.kicad_sym": sampleSymbol,
		"NE555.kicad_mod": sampleFootprint,
	})

	job, err := svc.Upload(context.Background(), "ne555.zip", archive)
	require.NoError(t, err)
	job, err = svc.Analyze(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPlanned, job.Status)

	// losing the stored archive makes the re-analysis fail
	require.NoError(t, os.Remove(job.SourceRef))

	_, err = svc.Analyze(context.Background(), job.ID)
	require.Error(t, err)

	job, err = svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.NotEmpty(t, job.Errors)
}

func TestFullLifecycle_ApplyAndRollback(t *testing.T) {
	svc, cfg := newService(t)
	archive := buildArchive(t, map[string]string{
		"NE555.kicad_sym": sampleSymbol,
		"NE555.kicad_mod": sampleFootprint,
	})

	job, err := svc.Upload(context.Background(), "ne555.zip", archive)
	require.NoError(t, err)
	job, err = svc.Analyze(context.Background(), job.ID)
	require.NoError(t, err)

	// apply before review fails fast
	_, err = svc.Apply(context.Background(), job.ID)
	assert.ErrorIs(t, err, errs.ErrNotApproved)

	job, err = svc.Review(job.ID, true, "looks right")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, job.Status)

	result, err := svc.Apply(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, result.BackupIDs, 2)

	symTable, err := os.ReadFile(filepath.Join(cfg.Paths.Root, string(model.TableSymbol)))
	require.NoError(t, err)
	assert.Contains(t, string(symTable), `(name "KiComport_ne555")`)

	diff, err := svc.Diff(job.ID, model.TableSymbol)
	require.NoError(t, err)
	assert.Equal(t, model.TableSymbol, diff.Table)

	job, err = svc.Rollback(context.Background(), job.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRolledBack, job.Status)

	// the tables did not exist before the apply, so rollback removes them
	_, statErr := os.Stat(filepath.Join(cfg.Paths.Root, string(model.TableSymbol)))
	assert.True(t, os.IsNotExist(statErr))

	events, err := svc.AuditHistory(job.ID, 0, 0)
	require.NoError(t, err)
	var actions []string
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		model.ActionUpload, model.ActionScan, model.ActionScore,
		model.ActionReview, model.ActionApply, model.ActionRollback,
	}, actions)
}

func TestSetSelection_RebuildsPlanWithOverride(t *testing.T) {
	svc, _ := newService(t)
	archive := buildArchive(t, map[string]string{
		"NE555.kicad_sym":     sampleSymbol,
		"old/NE555.kicad_sym": sampleSymbol + "\n",
		"NE555.kicad_mod":     sampleFootprint,
	})

	job, err := svc.Upload(context.Background(), "ne555.zip", archive)
	require.NoError(t, err)
	job, err = svc.Analyze(context.Background(), job.ID)
	require.NoError(t, err)

	// the low-trust copy loses by default
	var loser string
	for _, c := range job.Candidates {
		if c.Kind == model.KindSymbol && c.RelPath == "old/NE555.kicad_sym" {
			loser = c.ID
			assert.False(t, c.Selected)
		}
	}
	require.NotEmpty(t, loser)

	plan, err := svc.SetSelection(job.ID, "ne555", model.KindSymbol, loser)
	require.NoError(t, err)

	for _, sel := range plan.Selections {
		if sel.Kind == model.KindSymbol {
			assert.Equal(t, loser, sel.CandidateID)
			assert.True(t, sel.Overridden)
		}
	}
}

func TestReview_Reject(t *testing.T) {
	svc, _ := newService(t)
	archive := buildArchive(t, map[string]string{
		"NE555.kicad_sym": sampleSymbol,
		"NE555.kicad_mod": sampleFootprint,
	})

	job, err := svc.Upload(context.Background(), "ne555.zip", archive)
	require.NoError(t, err)
	job, err = svc.Analyze(context.Background(), job.ID)
	require.NoError(t, err)

	job, err = svc.Review(job.ID, false, "wrong footprint")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, job.Status)
	assert.Equal(t, "wrong footprint", job.ReviewNotes)

	_, err = svc.Apply(context.Background(), job.ID)
	assert.ErrorIs(t, err, errs.ErrNotApproved)
}

func TestAuditHistory_GlobalSince(t *testing.T) {
	svc, _ := newService(t)
	archive := buildArchive(t, map[string]string{"NE555.kicad_sym": sampleSymbol})

	job, err := svc.Upload(context.Background(), "ne555.zip", archive)
	require.NoError(t, err)

	all, err := svc.AuditHistory("*", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, job.ID, all[0].JobID)

	after, err := svc.AuditHistory("*", all[len(all)-1].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, after)
}
