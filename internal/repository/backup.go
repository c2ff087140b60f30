// repository/backup.go - Write-once table backup snapshots
package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kicomport/internal/database"
	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"
)

// BackupRepository captures pre-mutation snapshots of table files and resolves
// rollback targets. Snapshot bytes live on disk under the backup directory;
// metadata (incl. content and successor hashes) lives in SQLite.
type BackupRepository interface {
	// CreateBackup snapshots the current content of tablePath for jobID.
	// fileExisted records whether the table file was present on disk; a
	// rollback of an absent-file backup removes the file again.
	CreateBackup(jobID string, table model.TableKind, tablePath string, content []byte, fileExisted bool) (*model.TableBackup, error)
	// SetSuccessorHash records the table content hash right after the apply
	// that this backup belongs to committed.
	SetSuccessorHash(backupID int64, hash string) error
	// GetByID returns one backup.
	GetByID(backupID int64) (*model.TableBackup, error)
	// LatestForJob returns the newest backup of table for the job.
	LatestForJob(jobID string, table model.TableKind) (*model.TableBackup, error)
	// ReadContent returns the captured bytes of a backup.
	ReadContent(backup *model.TableBackup) ([]byte, error)
}

type backupRepository struct {
	db        database.DatabaseManager
	backupDir string
	logger    logger.Logger
}

// NewBackupRepository creates the backup repository rooted at backupDir.
func NewBackupRepository(db database.DatabaseManager, backupDir string, logger logger.Logger) (BackupRepository, error) {
	if err := utils.EnsureDir(backupDir); err != nil {
		return nil, err
	}
	return &backupRepository{db: db, backupDir: backupDir, logger: logger}, nil
}

func (r *backupRepository) CreateBackup(jobID string, table model.TableKind, tablePath string, content []byte, fileExisted bool) (*model.TableBackup, error) {
	seq, err := r.nextSeq(jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fileName := fmt.Sprintf("%s_%s_%d_%s.bak", jobID, table, seq, now.Format("20060102150405"))
	backupPath := filepath.Join(r.backupDir, fileName)

	if err := utils.AtomicWriteFile(backupPath, content, 0644); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBackupWrite, err)
	}

	contentHash := utils.HashBytes(content)
	result, err := r.db.GetDB().Exec(
		"INSERT INTO table_backups (job_id, seq, table_kind, table_path, backup_path, file_existed, content_hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		jobID, seq, string(table), tablePath, backupPath, fileExisted, contentHash, now,
	)
	if err != nil {
		// metadata write failed: discard the orphaned snapshot file
		os.Remove(backupPath)
		return nil, fmt.Errorf("%w: %v", errs.ErrBackupWrite, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get backup id: %w", err)
	}

	r.logger.Info("created table backup %d for job %s (%s seq %d)", id, jobID, table, seq)
	return &model.TableBackup{
		ID:          id,
		JobID:       jobID,
		Seq:         seq,
		Table:       table,
		TablePath:   tablePath,
		BackupPath:  backupPath,
		FileExisted: fileExisted,
		ContentHash: contentHash,
		CreatedAt:   now,
	}, nil
}

func (r *backupRepository) nextSeq(jobID string) (int, error) {
	var maxSeq sql.NullInt64
	err := r.db.GetDB().QueryRow(
		"SELECT MAX(seq) FROM table_backups WHERE job_id = ?", jobID,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to compute backup sequence: %w", err)
	}
	if !maxSeq.Valid {
		return 1, nil
	}
	return int(maxSeq.Int64) + 1, nil
}

func (r *backupRepository) SetSuccessorHash(backupID int64, hash string) error {
	_, err := r.db.GetDB().Exec(
		"UPDATE table_backups SET successor_hash = ? WHERE id = ? AND successor_hash = ''",
		hash, backupID,
	)
	if err != nil {
		return fmt.Errorf("failed to set successor hash for backup %d: %w", backupID, err)
	}
	return nil
}

func (r *backupRepository) GetByID(backupID int64) (*model.TableBackup, error) {
	row := r.db.GetDB().QueryRow(
		"SELECT id, job_id, seq, table_kind, table_path, backup_path, file_existed, content_hash, successor_hash, created_at FROM table_backups WHERE id = ?",
		backupID,
	)
	return scanBackup(row)
}

func (r *backupRepository) LatestForJob(jobID string, table model.TableKind) (*model.TableBackup, error) {
	row := r.db.GetDB().QueryRow(
		"SELECT id, job_id, seq, table_kind, table_path, backup_path, file_existed, content_hash, successor_hash, created_at FROM table_backups WHERE job_id = ? AND table_kind = ? ORDER BY seq DESC LIMIT 1",
		jobID, string(table),
	)
	return scanBackup(row)
}

func (r *backupRepository) ReadContent(backup *model.TableBackup) ([]byte, error) {
	data, err := os.ReadFile(backup.BackupPath)
	if err != nil {
		return nil, fmt.Errorf("%w: backup file %s: %v", errs.ErrRollbackTargetNotFound, backup.BackupPath, err)
	}
	if utils.HashBytes(data) != backup.ContentHash {
		return nil, fmt.Errorf("%w: backup file %s content mismatch", errs.ErrRollbackTargetNotFound, backup.BackupPath)
	}
	return data, nil
}

func scanBackup(row *sql.Row) (*model.TableBackup, error) {
	var backup model.TableBackup
	var table string
	err := row.Scan(&backup.ID, &backup.JobID, &backup.Seq, &table, &backup.TablePath,
		&backup.BackupPath, &backup.FileExisted, &backup.ContentHash, &backup.SuccessorHash, &backup.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrRollbackTargetNotFound
		}
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	backup.Table = model.TableKind(table)
	return &backup, nil
}
