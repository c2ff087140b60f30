package errs

import (
	"errors"
	"fmt"

	"kicomport/pkg/response"
)

// Core error kinds surfaced by the scan/score/apply/rollback pipeline.
var (
	ErrResourceLimitExceeded = response.NewError("kicomport.resource_limit_exceeded", "extraction resource limit exceeded")
	ErrNoCandidate           = response.NewError("kicomport.no_candidate", "no selectable candidate for required kind")
	ErrPlanIncomplete        = response.NewError("kicomport.plan_incomplete", "plan is missing required selections")
	ErrNotApproved           = response.NewError("kicomport.not_approved", "job has not been approved for apply")
	ErrBackupWrite           = response.NewError("kicomport.backup_write_error", "failed to write table backup")
	ErrTableRender           = response.NewError("kicomport.table_render_error", "rendered table entry is invalid")
	ErrApplyConflict         = response.NewError("kicomport.apply_conflict", "table file modified outside of kicomport")
	ErrRollbackTargetNotFound = response.NewError("kicomport.rollback_target_not_found", "rollback target backup not found")
	ErrAdvisoryUnavailable   = response.NewError("kicomport.advisory_unavailable", "advisory scoring unavailable")
	ErrDuplicateEntry        = response.NewError("kicomport.duplicate_entry", "library table entry name already present")
	ErrRecordNotFound        = errors.New("record not found")
)

var errorInvalidParamFmt = "invalid request params: %s %v"
var errorRecordNotFoundFmt = "%s not found by %s"
var errorInvalidTransitionFmt = "invalid job status transition: %s -> %s"

func NewInvalidParamErr(name string, value interface{}) error {
	return fmt.Errorf(errorInvalidParamFmt, name, value)
}

func NewRecordNotFoundErr(name string, value interface{}) error {
	return fmt.Errorf("%w: "+errorRecordNotFoundFmt, ErrRecordNotFound, name, value)
}

func NewInvalidTransitionErr(from, to string) error {
	return fmt.Errorf(errorInvalidTransitionFmt, from, to)
}
