package model

import "time"

// Job is one ingestion unit. Owned by the job store; mutated only through
// validated status transitions.
type Job struct {
	ID         string    `json:"id"`
	SourceName string    `json:"sourceName"`
	SourceRef  string    `json:"sourceRef"`
	SourceMD5  string    `json:"sourceMd5"`
	Status     JobStatus `json:"status"`
	WorkDir    string    `json:"workDir"`
	Plan       *Plan     `json:"plan,omitempty"`
	Components []*Component `json:"components,omitempty"`
	Candidates []*CandidateFile `json:"candidates,omitempty"`
	BackupIDs  []int64   `json:"backupIds,omitempty"`
	Diffs      []*Diff   `json:"diffs,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	ReviewNotes string   `json:"reviewNotes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Component groups candidates of different kinds discovered under one job,
// keyed by shared base name.
type Component struct {
	Key        string                       `json:"key"`
	Selected   map[CandidateKind]string     `json:"selected,omitempty"`
	Overridden map[CandidateKind]bool       `json:"overridden,omitempty"`
}

// CandidateFile is one discovered asset. Immutable once scored except the
// Selected flag.
type CandidateFile struct {
	ID           string        `json:"id"`
	ComponentKey string        `json:"componentKey"`
	Kind         CandidateKind `json:"kind"`
	RelPath      string        `json:"relPath"`
	AbsPath      string        `json:"absPath"`
	ContentHash  string        `json:"contentHash"`
	SizeBytes    int64         `json:"sizeBytes"`

	Name        string `json:"name"`
	Description string `json:"description"`
	PinCount    int    `json:"pinCount"`    // -1 when unknown
	PadCount    int    `json:"padCount"`    // -1 when unknown

	HeuristicScore   float64  `json:"heuristicScore"`
	QualityScore     float64  `json:"qualityScore"`
	AdvisoryScore    *float64 `json:"advisoryScore,omitempty"`
	AdvisoryReason   string   `json:"advisoryReason,omitempty"`
	FeedbackScore    float64  `json:"feedbackScore"`
	ConsistencyBonus float64  `json:"consistencyBonus"`
	TrustBonus       float64  `json:"trustBonus"`
	CombinedScore    float64  `json:"combinedScore"`

	Selected     bool   `json:"selected"`
	InstalledPath string `json:"installedPath,omitempty"`
}

// Plan holds the per-component selections proposed for a job.
type Plan struct {
	JobID      string      `json:"jobId"`
	Selections []Selection `json:"selections"`
	Complete   bool        `json:"complete"`
	Missing    []string    `json:"missing,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Selection binds one candidate to a component/kind slot.
type Selection struct {
	ComponentKey string        `json:"componentKey"`
	Kind         CandidateKind `json:"kind"`
	CandidateID  string        `json:"candidateId"`
	Overridden   bool          `json:"overridden"`
}

// TableBackup is a write-once snapshot of one table file taken before an
// apply mutated it.
type TableBackup struct {
	ID            int64     `json:"id" db:"id"`
	JobID         string    `json:"jobId" db:"job_id"`
	Seq           int       `json:"seq" db:"seq"`
	Table         TableKind `json:"table" db:"table_kind"`
	TablePath     string    `json:"tablePath" db:"table_path"`
	BackupPath    string    `json:"backupPath" db:"backup_path"`
	FileExisted   bool      `json:"fileExisted" db:"file_existed"`
	ContentHash   string    `json:"contentHash" db:"content_hash"`
	SuccessorHash string    `json:"successorHash" db:"successor_hash"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// DiffOp classifies one diff hunk line group
type DiffOp string

const (
	DiffKept    DiffOp = "kept"
	DiffAdded   DiffOp = "added"
	DiffRemoved DiffOp = "removed"
)

// DiffHunk is one run of lines sharing an op.
type DiffHunk struct {
	Op    DiffOp   `json:"op"`
	Lines []string `json:"lines"`
}

// Diff is a structured before/after comparison of one table file across one
// apply event.
type Diff struct {
	Table TableKind  `json:"table"`
	Hunks []DiffHunk `json:"hunks"`
}

// AuditEvent is one append-only record of a state-changing action.
type AuditEvent struct {
	ID        int64     `json:"eventId" db:"id"`
	JobID     string    `json:"jobId" db:"job_id"`
	Action    string    `json:"action" db:"action"`
	Actor     string    `json:"actor" db:"actor"`
	Payload   string    `json:"payload" db:"payload"`
	CreatedAt time.Time `json:"timestamp" db:"created_at"`
}
