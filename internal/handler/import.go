// handler/import.go - HTTP handlers for the import pipeline
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"kicomport/internal/dto"
	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/internal/service"
	"kicomport/pkg/logger"
	"kicomport/pkg/response"
)

// ImportHandler exposes the job lifecycle over HTTP.
type ImportHandler struct {
	jobService service.JobService
	logger     logger.Logger
}

// NewImportHandler creates the import handler
func NewImportHandler(jobService service.JobService, logger logger.Logger) *ImportHandler {
	return &ImportHandler{jobService: jobService, logger: logger}
}

// Upload accepts a multipart archive upload and creates (or dedups to) a job.
func (h *ImportHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("upload missing file field: %v", err)
		response.Error(c, http.StatusBadRequest, errs.NewInvalidParamErr("file", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.Upload(c, fileHeader.Filename, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, job)
}

// Analyze runs extract/scan/score/plan for a job.
func (h *ImportHandler) Analyze(c *gin.Context) {
	job, err := h.jobService.Analyze(c, c.Param("jobId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, job)
}

func (h *ImportHandler) GetJob(c *gin.Context) {
	job, err := h.jobService.GetJob(c.Param("jobId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, job)
}

func (h *ImportHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobService.ListJobs()
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, jobs)
}

func (h *ImportHandler) GetPlan(c *gin.Context) {
	plan, err := h.jobService.GetPlan(c.Param("jobId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, plan)
}

// SetSelection records a user override and returns the rebuilt plan.
func (h *ImportHandler) SetSelection(c *gin.Context) {
	var req dto.SetSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid selection request: %v", err)
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	plan, err := h.jobService.SetSelection(c.Param("jobId"), req.ComponentKey,
		model.CandidateKind(req.Kind), req.CandidateID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, plan)
}

func (h *ImportHandler) Review(c *gin.Context) {
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid review request: %v", err)
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.Review(c.Param("jobId"), *req.Approved, req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, job)
}

func (h *ImportHandler) Apply(c *gin.Context) {
	result, err := h.jobService.Apply(c, c.Param("jobId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, result)
}

func (h *ImportHandler) Rollback(c *gin.Context) {
	// An absent body targets the latest backup.
	var req dto.RollbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("invalid rollback request: %v", err)
			response.Error(c, http.StatusBadRequest, err)
			return
		}
	}

	job, err := h.jobService.Rollback(c, c.Param("jobId"), req.BackupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, job)
}

func (h *ImportHandler) Diff(c *gin.Context) {
	var req dto.DiffRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	diff, err := h.jobService.Diff(c.Param("jobId"), model.TableKind(req.Table))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, diff)
}

// AuditHistory lists a job's audit trail.
func (h *ImportHandler) AuditHistory(c *gin.Context) {
	var req dto.AuditHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	jobID := c.Param("jobId")
	events, err := h.jobService.AuditHistory(jobID, req.Since, req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, events)
}

// AuditHistoryAll lists audit events across all jobs.
func (h *ImportHandler) AuditHistoryAll(c *gin.Context) {
	var req dto.AuditHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	events, err := h.jobService.AuditHistory("*", req.Since, req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OkJson(c, events)
}

// respondError maps pipeline error kinds onto HTTP status codes.
func (h *ImportHandler) respondError(c *gin.Context, err error) {
	h.logger.Error("request failed: %v", err)

	switch {
	case errors.Is(err, errs.ErrRecordNotFound),
		errors.Is(err, errs.ErrRollbackTargetNotFound):
		response.Error(c, http.StatusNotFound, err)
	case errors.Is(err, errs.ErrResourceLimitExceeded):
		response.Error(c, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, errs.ErrApplyConflict),
		errors.Is(err, errs.ErrNotApproved),
		errors.Is(err, errs.ErrPlanIncomplete),
		errors.Is(err, errs.ErrDuplicateEntry):
		response.Error(c, http.StatusConflict, err)
	default:
		response.Error(c, http.StatusBadRequest, err)
	}
}
