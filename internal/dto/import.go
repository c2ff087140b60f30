// dto/import.go - Request/response shapes for the import API
package dto

// SetSelectionRequest overrides one component/kind slot of a job's plan.
type SetSelectionRequest struct {
	ComponentKey string `json:"componentKey" binding:"required"`
	Kind         string `json:"kind" binding:"required"`
	CandidateID  string `json:"candidateId" binding:"required"`
}

// ReviewRequest approves or rejects a planned job.
type ReviewRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Notes    string `json:"notes"`
}

// RollbackRequest selects the rollback target. BackupID 0 means the latest
// backups of the job.
type RollbackRequest struct {
	BackupID int64 `json:"backupId"`
}

// DiffRequest selects the table whose diff is requested.
type DiffRequest struct {
	Table string `form:"table" binding:"required"`
}

// AuditHistoryRequest pages through audit events.
type AuditHistoryRequest struct {
	Since int64 `form:"since"`
	Limit int   `form:"limit"`
}
