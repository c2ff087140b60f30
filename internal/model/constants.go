package model

// CandidateKind classifies a discovered asset file
type CandidateKind string

const (
	KindSymbol    CandidateKind = "symbol"
	KindFootprint CandidateKind = "footprint"
	KindModel     CandidateKind = "model"
)

// RequiredKinds are the kinds a complete plan must select for every
// component; a missing selection marks the plan incomplete.
var RequiredKinds = []CandidateKind{KindSymbol, KindFootprint}

// JobStatus values and their allowed transitions
type JobStatus string

const (
	StatusUploaded   JobStatus = "uploaded"
	StatusScanned    JobStatus = "scanned"
	StatusPlanned    JobStatus = "planned"
	StatusApproved   JobStatus = "approved"
	StatusRejected   JobStatus = "rejected"
	StatusApplying   JobStatus = "applying"
	StatusApplied    JobStatus = "applied"
	StatusFailed     JobStatus = "failed"
	StatusRolledBack JobStatus = "rolled_back"
)

var statusTransitions = map[JobStatus][]JobStatus{
	StatusUploaded:   {StatusScanned, StatusFailed},
	StatusScanned:    {StatusPlanned, StatusScanned, StatusFailed},
	StatusPlanned:    {StatusApproved, StatusRejected, StatusPlanned, StatusScanned, StatusFailed},
	StatusApproved:   {StatusApplying, StatusPlanned},
	StatusRejected:   {StatusPlanned, StatusScanned, StatusFailed},
	StatusApplying:   {StatusApplied, StatusFailed},
	StatusApplied:    {StatusRolledBack},
	// A failed apply may have committed some tables before the failure; its
	// backups stay valid rollback targets.
	StatusFailed:     {StatusRolledBack},
	StatusRolledBack: {StatusRolledBack, StatusScanned, StatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Audit actions
const (
	ActionUpload   = "upload"
	ActionScan     = "scan"
	ActionScore    = "score"
	ActionReview   = "review"
	ActionApply    = "apply"
	ActionRollback = "rollback"
	ActionUndo     = "undo"
)

// Library table identifiers
type TableKind string

const (
	TableSymbol    TableKind = "sym-lib-table"
	TableFootprint TableKind = "fp-lib-table"
)

// MetadataUnknown marks a metadata field the structural parse could not recover
const MetadataUnknown = "unknown"
