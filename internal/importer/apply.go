// importer/apply.go - Transactional apply of an approved plan
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"kicomport/internal/config"
	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/internal/repository"
	"kicomport/internal/tables"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"
)

// ApplyResult summarizes one successful apply.
type ApplyResult struct {
	BackupIDs []int64       `json:"backupIds"`
	Diffs     []*model.Diff `json:"diffs"`
	Placed    []string      `json:"placed"`
}

// ApplyEngine installs an approved plan into the shared library and reverses
// it from backups. Each table file is mutated only under its lock and only
// through atomic writes.
type ApplyEngine interface {
	Apply(ctx context.Context, job *model.Job) (*ApplyResult, error)
	// Rollback restores a table backup. backupID 0 targets the latest
	// backups of the job; a specific id replays one table snapshot.
	Rollback(ctx context.Context, job *model.Job, backupID int64) error
	// Diff returns the persisted before/after comparison of one table for
	// the job's most recent apply.
	Diff(job *model.Job, table model.TableKind) (*model.Diff, error)
}

type applyEngine struct {
	cfg       config.AppConfig
	editor    tables.TableEditor
	organizer Organizer
	locks     TableLockManager
	jobs      repository.JobStore
	backups   repository.BackupRepository
	audit     repository.AuditRepository
	feedback  repository.FeedbackRepository
	logger    logger.Logger
}

// NewApplyEngine creates the apply engine
func NewApplyEngine(cfg config.AppConfig, editor tables.TableEditor, organizer Organizer,
	locks TableLockManager, jobs repository.JobStore, backups repository.BackupRepository,
	audit repository.AuditRepository, feedback repository.FeedbackRepository,
	logger logger.Logger) ApplyEngine {
	return &applyEngine{
		cfg:       cfg,
		editor:    editor,
		organizer: organizer,
		locks:     locks,
		jobs:      jobs,
		backups:   backups,
		audit:     audit,
		feedback:  feedback,
		logger:    logger,
	}
}

func (e *applyEngine) tablePath(table model.TableKind) string {
	return filepath.Join(e.cfg.Paths.Root, string(table))
}

// Apply runs the full sequence: preconditions, backup, file placement, atomic
// table writes, diff persistence, audit, status advance. Precondition
// failures make no filesystem change; later failures set the job to failed
// with the cause attached, leaving created backups as valid rollback targets.
func (e *applyEngine) Apply(ctx context.Context, job *model.Job) (*ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if job.Status != model.StatusApproved {
		return nil, fmt.Errorf("%w: job %s is %s", errs.ErrNotApproved, job.ID, job.Status)
	}
	if job.Plan == nil || !job.Plan.Complete {
		return nil, fmt.Errorf("%w: job %s", errs.ErrPlanIncomplete, job.ID)
	}

	touched := e.touchedTables(job.Plan)
	if len(touched) == 0 {
		return nil, fmt.Errorf("%w: plan selects no table entries", errs.ErrPlanIncomplete)
	}

	if err := e.jobs.UpdateStatus(job, model.StatusApplying); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(touched))
	for _, table := range touched {
		paths = append(paths, e.tablePath(table))
	}
	release := e.locks.Acquire(paths...)
	defer release()

	result, err := e.applyLocked(job, touched)
	if err != nil {
		job.Errors = append(job.Errors, err.Error())
		if stateErr := e.jobs.UpdateStatus(job, model.StatusFailed); stateErr != nil {
			e.logger.Error("failed to mark job %s failed: %v", job.ID, stateErr)
		}
		return nil, err
	}

	if err := e.jobs.UpdateStatus(job, model.StatusApplied); err != nil {
		return nil, err
	}
	e.logger.Info("job %s applied: %d backups, %d files placed", job.ID, len(result.BackupIDs), len(result.Placed))
	return result, nil
}

func (e *applyEngine) applyLocked(job *model.Job, touched []model.TableKind) (*ApplyResult, error) {
	// Snapshot every table that will be touched before any mutation.
	preImages := make(map[model.TableKind]string, len(touched))
	backupByTable := make(map[model.TableKind]*model.TableBackup, len(touched))
	result := &ApplyResult{}

	for _, table := range touched {
		content, existed, err := e.readOrDefault(table)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrBackupWrite, err)
		}
		backup, err := e.backups.CreateBackup(job.ID, table, e.tablePath(table), []byte(content), existed)
		if err != nil {
			return nil, err
		}
		preImages[table] = content
		backupByTable[table] = backup
		job.BackupIDs = append(job.BackupIDs, backup.ID)
		result.BackupIDs = append(result.BackupIDs, backup.ID)
	}

	placed, err := e.organizer.PlaceSelections(job)
	for _, p := range placed {
		result.Placed = append(result.Placed, p.DestPath)
	}
	if err != nil {
		e.recordOrphans(job, placed)
		return nil, fmt.Errorf("file placement failed: %w", err)
	}

	if err := e.commitTables(job, touched, preImages, backupByTable, placed, result); err != nil {
		e.recordOrphans(job, placed)
		return nil, err
	}

	for _, p := range placed {
		if err := e.feedback.RecordApplied(p.Candidate.ContentHash); err != nil {
			e.logger.Warn("feedback update failed for %s: %v", p.Candidate.RelPath, err)
		}
	}
	return result, nil
}

// commitTables renders and atomically writes every touched table, records
// successor hashes, persists diffs and the audit event.
func (e *applyEngine) commitTables(job *model.Job, touched []model.TableKind,
	preImages map[model.TableKind]string, backupByTable map[model.TableKind]*model.TableBackup,
	placed []PlacedFile, result *ApplyResult) error {
	entriesByTable := e.renderEntries(job, placed)

	for _, table := range touched {
		merged, err := e.editor.Merge(table, preImages[table], entriesByTable[table])
		if err != nil {
			return err
		}
		if err := utils.AtomicWriteFile(e.tablePath(table), []byte(merged), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", table, err)
		}
		if err := e.backups.SetSuccessorHash(backupByTable[table].ID, utils.HashBytes([]byte(merged))); err != nil {
			return err
		}
		result.Diffs = append(result.Diffs, tables.ComputeDiff(table, preImages[table], merged))
	}
	job.Diffs = result.Diffs

	if _, err := e.audit.Append(job.ID, model.ActionApply, e.cfg.Apply.Actor, result); err != nil {
		return err
	}
	return nil
}

// Files placed before a failed apply stay on disk; they are reported, not
// silently reverted.
func (e *applyEngine) recordOrphans(job *model.Job, placed []PlacedFile) {
	for _, p := range placed {
		job.Warnings = append(job.Warnings, "orphaned file from failed apply: "+p.DestPath)
	}
}

// renderEntries builds the table entries for every symbol and footprint
// selection, one entry per component and kind.
func (e *applyEngine) renderEntries(job *model.Job, placed []PlacedFile) map[model.TableKind][]tables.TableEntry {
	prefix := utils.SanitizeBaseName(e.cfg.Apply.LibraryPrefix)
	if prefix == "" {
		prefix = "KiComport"
	}

	entries := make(map[model.TableKind][]tables.TableEntry)
	for _, p := range placed {
		name := prefix + "_" + utils.SanitizeBaseName(p.Candidate.ComponentKey)
		descr := p.Candidate.Description
		if descr == "" || descr == model.MetadataUnknown {
			descr = "Imported from " + job.SourceName
		}

		switch p.Candidate.Kind {
		case model.KindSymbol:
			entries[model.TableSymbol] = append(entries[model.TableSymbol], tables.TableEntry{
				Name:  name,
				Type:  "KiCad",
				URI:   p.DestPath,
				Descr: descr,
			})
		case model.KindFootprint:
			entries[model.TableFootprint] = append(entries[model.TableFootprint], tables.TableEntry{
				Name:  name,
				Type:  "KiCad",
				URI:   e.organizer.FootprintDir(),
				Descr: descr,
			})
		}
	}
	return entries
}

// touchedTables lists the table files the plan will mutate, in stable order.
func (e *applyEngine) touchedTables(plan *model.Plan) []model.TableKind {
	hasSymbol, hasFootprint := false, false
	for _, sel := range plan.Selections {
		switch sel.Kind {
		case model.KindSymbol:
			hasSymbol = true
		case model.KindFootprint:
			hasFootprint = true
		}
	}
	var touched []model.TableKind
	if hasSymbol {
		touched = append(touched, model.TableSymbol)
	}
	if hasFootprint {
		touched = append(touched, model.TableFootprint)
	}
	return touched
}

// readOrDefault returns the current table content and whether the file
// exists; a missing table file yields the default header.
func (e *applyEngine) readOrDefault(table model.TableKind) (string, bool, error) {
	data, err := os.ReadFile(e.tablePath(table))
	if err != nil {
		if os.IsNotExist(err) {
			return e.editor.DefaultTable(table), false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// Diff returns the persisted diff of one table from the job's latest apply.
func (e *applyEngine) Diff(job *model.Job, table model.TableKind) (*model.Diff, error) {
	for _, diff := range job.Diffs {
		if diff.Table == table {
			return diff, nil
		}
	}
	return nil, errs.NewRecordNotFoundErr("diff", fmt.Sprintf("%s/%s", job.ID, table))
}
