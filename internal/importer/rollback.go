// importer/rollback.go - Backup restoration with drift detection
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/internal/utils"
)

type rollbackTarget struct {
	backup  *model.TableBackup
	content []byte
	restore bool
}

// Rollback restores table content from backup snapshots. Every target is
// checked against its recorded successor hash before any write: external
// drift raises ApplyConflict and nothing is changed. Rolling back an
// already-restored target is a no-op success. Failed jobs are accepted too:
// an apply can fail after it already committed one table, and that table's
// backup must stay reachable.
func (e *applyEngine) Rollback(ctx context.Context, job *model.Job, backupID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.Status != model.StatusApplied && job.Status != model.StatusRolledBack &&
		job.Status != model.StatusFailed {
		return errs.NewInvalidTransitionErr(string(job.Status), string(model.StatusRolledBack))
	}

	targets, action, err := e.resolveTargets(job, backupID)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(targets))
	for _, t := range targets {
		paths = append(paths, t.backup.TablePath)
	}
	release := e.locks.Acquire(paths...)
	defer release()

	// Validate every target before touching any file.
	restoreCount := 0
	for _, t := range targets {
		current, _, err := e.readOrDefault(t.backup.Table)
		if err != nil {
			return err
		}
		currentHash := utils.HashBytes([]byte(current))

		if currentHash == t.backup.ContentHash {
			continue // already restored
		}
		if t.backup.SuccessorHash == "" || currentHash != t.backup.SuccessorHash {
			return fmt.Errorf("%w: %s changed since apply (job %s, backup %d)",
				errs.ErrApplyConflict, t.backup.Table, job.ID, t.backup.ID)
		}

		content, err := e.backups.ReadContent(t.backup)
		if err != nil {
			return err
		}
		t.content = content
		t.restore = true
		restoreCount++
	}

	for _, t := range targets {
		if !t.restore {
			continue
		}
		// A table that did not exist before the apply is removed, not
		// rewritten with the synthesized default header.
		if !t.backup.FileExisted {
			if err := os.Remove(t.backup.TablePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to restore %s: %w", t.backup.Table, err)
			}
		} else if err := utils.AtomicWriteFile(t.backup.TablePath, t.content, 0644); err != nil {
			return fmt.Errorf("failed to restore %s: %w", t.backup.Table, err)
		}
		e.logger.Info("restored %s from backup %d for job %s", t.backup.Table, t.backup.ID, job.ID)
	}

	payload := map[string]any{"backupIds": backupIDs(targets), "restored": restoreCount}
	if _, err := e.audit.Append(job.ID, action, e.cfg.Apply.Actor, payload); err != nil {
		return err
	}
	return e.jobs.UpdateStatus(job, model.StatusRolledBack)
}

// resolveTargets maps a rollback request to concrete backups. backupID 0
// means the latest backup per touched table; a specific id replays that one
// snapshot and is audited as an undo.
func (e *applyEngine) resolveTargets(job *model.Job, backupID int64) ([]*rollbackTarget, string, error) {
	if backupID > 0 {
		backup, err := e.backups.GetByID(backupID)
		if err != nil {
			return nil, "", err
		}
		if backup.JobID != job.ID {
			return nil, "", errs.NewInvalidParamErr("backupId",
				fmt.Sprintf("%d belongs to job %s", backupID, backup.JobID))
		}
		return []*rollbackTarget{{backup: backup}}, model.ActionUndo, nil
	}

	var targets []*rollbackTarget
	for _, table := range []model.TableKind{model.TableSymbol, model.TableFootprint} {
		backup, err := e.backups.LatestForJob(job.ID, table)
		if err != nil {
			if errors.Is(err, errs.ErrRollbackTargetNotFound) {
				continue
			}
			return nil, "", err
		}
		targets = append(targets, &rollbackTarget{backup: backup})
	}
	if len(targets) == 0 {
		return nil, "", fmt.Errorf("%w: job %s has no backups", errs.ErrRollbackTargetNotFound, job.ID)
	}
	return targets, model.ActionRollback, nil
}

func backupIDs(targets []*rollbackTarget) []int64 {
	ids := make([]int64, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.backup.ID)
	}
	return ids
}
