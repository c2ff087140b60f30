// service/jobservice.go - Job lifecycle orchestration
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"kicomport/internal/config"
	"kicomport/internal/errs"
	"kicomport/internal/importer"
	"kicomport/internal/model"
	"kicomport/internal/planner"
	"kicomport/internal/repository"
	"kicomport/internal/scanner"
	"kicomport/internal/scorer"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"
)

// JobService is the operation surface consumed by the transport layer. Every
// mutating operation persists the job document before returning, so readers
// observe either the pre-operation or post-operation state.
type JobService interface {
	Upload(ctx context.Context, sourceName string, content []byte) (*model.Job, error)
	Analyze(ctx context.Context, jobID string) (*model.Job, error)
	GetJob(jobID string) (*model.Job, error)
	ListJobs() ([]*model.Job, error)
	GetPlan(jobID string) (*model.Plan, error)
	SetSelection(jobID, componentKey string, kind model.CandidateKind, candidateID string) (*model.Plan, error)
	Review(jobID string, approved bool, notes string) (*model.Job, error)
	Apply(ctx context.Context, jobID string) (*importer.ApplyResult, error)
	Rollback(ctx context.Context, jobID string, backupID int64) (*model.Job, error)
	Diff(jobID string, table model.TableKind) (*model.Diff, error)
	AuditHistory(jobID string, sinceID int64, limit int) ([]*model.AuditEvent, error)
}

type jobService struct {
	cfg       config.AppConfig
	jobs      repository.JobStore
	audit     repository.AuditRepository
	extractor *scanner.Extractor
	scanner   *scanner.CandidateScanner
	scorer    scorer.CandidateScorer
	planner   planner.PlanBuilder
	engine    importer.ApplyEngine
	logger    logger.Logger
}

// NewJobService creates the job service
func NewJobService(cfg config.AppConfig, jobs repository.JobStore, audit repository.AuditRepository,
	extractor *scanner.Extractor, candidateScanner *scanner.CandidateScanner,
	candidateScorer scorer.CandidateScorer, planBuilder planner.PlanBuilder,
	engine importer.ApplyEngine, logger logger.Logger) JobService {
	return &jobService{
		cfg:       cfg,
		jobs:      jobs,
		audit:     audit,
		extractor: extractor,
		scanner:   candidateScanner,
		scorer:    candidateScorer,
		planner:   planBuilder,
		engine:    engine,
		logger:    logger,
	}
}

// Upload stores an uploaded archive and creates the job. Re-uploading bytes
// already known (by MD5) returns the existing job instead of a new one.
func (s *jobService) Upload(ctx context.Context, sourceName string, content []byte) (*model.Job, error) {
	if sourceName == "" {
		return nil, errs.NewInvalidParamErr("sourceName", sourceName)
	}
	if int64(len(content)) > s.cfg.Limits.MaxUploadBytes {
		return nil, fmt.Errorf("%w: upload is %d bytes, limit %d",
			errs.ErrResourceLimitExceeded, len(content), s.cfg.Limits.MaxUploadBytes)
	}

	md5sum := utils.MD5Bytes(content)
	if existing, err := s.jobs.FindJobByMD5(md5sum); err == nil && existing != nil {
		s.logger.Info("upload %s matches existing job %s", sourceName, existing.ID)
		return existing, nil
	}

	jobID, err := utils.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}
	storedName := jobID + "_" + utils.SanitizeBaseName(sourceName)
	storedPath := filepath.Join(s.cfg.Paths.Incoming, storedName)
	if err := utils.AtomicWriteFile(storedPath, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	job := &model.Job{
		ID:         jobID,
		SourceName: sourceName,
		SourceRef:  storedPath,
		SourceMD5:  md5sum,
		Status:     model.StatusUploaded,
		WorkDir:    filepath.Join(s.cfg.Paths.Work, jobID),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.jobs.SaveJob(job); err != nil {
		return nil, err
	}

	if _, err := s.audit.Append(job.ID, model.ActionUpload, s.cfg.Apply.Actor,
		map[string]any{"sourceName": sourceName, "sizeBytes": len(content)}); err != nil {
		s.logger.Warn("audit append failed for upload %s: %v", job.ID, err)
	}
	s.logger.Info("created job %s for upload %s (%d bytes)", job.ID, sourceName, len(content))
	return job, nil
}

// Analyze runs extract, scan, score and plan for one job. A resource limit
// violation fails the job and persists no candidate set; scan warnings are
// attached without blocking later stages.
func (s *jobService) Analyze(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(job.Status, model.StatusScanned) {
		return nil, errs.NewInvalidTransitionErr(string(job.Status), string(model.StatusScanned))
	}

	if err := s.analyze(ctx, job); err != nil {
		job.Errors = append(job.Errors, err.Error())
		job.Candidates = nil
		job.Components = nil
		job.Plan = nil
		if stateErr := s.jobs.UpdateStatus(job, model.StatusFailed); stateErr != nil {
			s.logger.Error("failed to mark job %s failed: %v", job.ID, stateErr)
		}
		return nil, err
	}
	return job, nil
}

func (s *jobService) analyze(ctx context.Context, job *model.Job) error {
	if err := s.extractor.Extract(job.SourceRef, job.WorkDir); err != nil {
		return err
	}

	candidates, warnings, err := s.scanner.Scan(job.WorkDir)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no recognizable assets in %s", errs.ErrNoCandidate, job.SourceName)
	}

	job.Candidates = candidates
	job.Components = buildComponents(candidates)
	job.Warnings = warnings
	if err := s.jobs.UpdateStatus(job, model.StatusScanned); err != nil {
		return err
	}
	if _, err := s.audit.Append(job.ID, model.ActionScan, s.cfg.Apply.Actor,
		map[string]any{"candidates": len(candidates), "warnings": len(warnings)}); err != nil {
		s.logger.Warn("audit append failed for scan %s: %v", job.ID, err)
	}

	scoreWarnings := s.scorer.ScoreAll(ctx, job.Components, job.Candidates)
	job.Warnings = append(job.Warnings, scoreWarnings...)
	if _, err := s.audit.Append(job.ID, model.ActionScore, s.cfg.Apply.Actor,
		map[string]any{"candidates": len(job.Candidates)}); err != nil {
		s.logger.Warn("audit append failed for score %s: %v", job.ID, err)
	}

	plan, err := s.planner.BuildPlan(job)
	if err != nil {
		return err
	}
	job.Plan = plan
	return s.jobs.UpdateStatus(job, model.StatusPlanned)
}

func (s *jobService) GetJob(jobID string) (*model.Job, error) {
	return s.jobs.GetJob(jobID)
}

func (s *jobService) ListJobs() ([]*model.Job, error) {
	return s.jobs.ListJobs()
}

func (s *jobService) GetPlan(jobID string) (*model.Plan, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Plan == nil {
		return nil, errs.NewRecordNotFoundErr("plan", jobID)
	}
	return job.Plan, nil
}

// SetSelection records a user override and rebuilds the plan. Only planned or
// rejected jobs accept overrides.
func (s *jobService) SetSelection(jobID, componentKey string, kind model.CandidateKind, candidateID string) (*model.Plan, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusPlanned && job.Status != model.StatusRejected {
		return nil, errs.NewInvalidTransitionErr(string(job.Status), string(model.StatusPlanned))
	}

	if err := s.planner.SetSelection(job, componentKey, kind, candidateID); err != nil {
		return nil, err
	}
	plan, err := s.planner.BuildPlan(job)
	if err != nil {
		return nil, err
	}
	job.Plan = plan
	if err := s.jobs.UpdateStatus(job, model.StatusPlanned); err != nil {
		return nil, err
	}
	return plan, nil
}

// Review approves or rejects a planned job.
func (s *jobService) Review(jobID string, approved bool, notes string) (*model.Job, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	target := model.StatusRejected
	if approved {
		target = model.StatusApproved
	}
	if !model.CanTransition(job.Status, target) {
		return nil, errs.NewInvalidTransitionErr(string(job.Status), string(target))
	}

	job.ReviewNotes = notes
	if err := s.jobs.UpdateStatus(job, target); err != nil {
		return nil, err
	}
	if _, err := s.audit.Append(job.ID, model.ActionReview, s.cfg.Apply.Actor,
		map[string]any{"approved": approved, "notes": notes}); err != nil {
		s.logger.Warn("audit append failed for review %s: %v", job.ID, err)
	}
	return job, nil
}

func (s *jobService) Apply(ctx context.Context, jobID string) (*importer.ApplyResult, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	return s.engine.Apply(ctx, job)
}

func (s *jobService) Rollback(ctx context.Context, jobID string, backupID int64) (*model.Job, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Rollback(ctx, job, backupID); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *jobService) Diff(jobID string, table model.TableKind) (*model.Diff, error) {
	if table != model.TableSymbol && table != model.TableFootprint {
		return nil, errs.NewInvalidParamErr("table", table)
	}
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	return s.engine.Diff(job, table)
}

// AuditHistory lists events for one job, or all events after sinceID when
// jobID is empty or "*".
func (s *jobService) AuditHistory(jobID string, sinceID int64, limit int) ([]*model.AuditEvent, error) {
	if jobID == "" || jobID == "*" {
		return s.audit.ListSince(sinceID, limit)
	}
	events, err := s.audit.ListByJob(jobID, limit)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		// distinguish "no events yet" from "no such job"
		if _, jobErr := s.jobs.GetJob(jobID); jobErr != nil {
			return nil, jobErr
		}
	}
	return events, nil
}

// buildComponents groups candidates by component key, in stable key order.
func buildComponents(candidates []*model.CandidateFile) []*model.Component {
	keys := make(map[string]struct{})
	for _, c := range candidates {
		keys[c.ComponentKey] = struct{}{}
	}
	ordered := make([]string, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	components := make([]*model.Component, 0, len(ordered))
	for _, key := range ordered {
		components = append(components, &model.Component{Key: key})
	}
	return components
}
